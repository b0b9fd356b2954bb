package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docreader-go/docreader/internal/config"
	"github.com/docreader-go/docreader/internal/delivery"
	"github.com/docreader-go/docreader/internal/metrics"
	"github.com/docreader-go/docreader/internal/pageload"
	"github.com/docreader-go/docreader/internal/pipeline"
)

const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

var (
	parseFormat       string
	parseOutputFile   string
	parseMaxPages     uint32
	parseNoLayout     bool
	parseNoDiagnostic bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a page image or PDF into Markdown or a structured result",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().StringVar(&parseFormat, "format", formatMarkdown, "output format: markdown or json")
	parseCmd.Flags().StringVar(&parseOutputFile, "output", "", "write output to this file instead of stdout")
	parseCmd.Flags().Uint32Var(&parseMaxPages, "max-pages", 0, "cap the number of PDF pages parsed (0 = use config default)")
	parseCmd.Flags().BoolVar(&parseNoLayout, "no-layout", false, "disable layout detection and recognize each page as a single region")
	parseCmd.Flags().BoolVar(&parseNoDiagnostic, "no-diagnostics", false, "omit warnings/timings/metadata from the result")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	if parseFormat != formatMarkdown && parseFormat != formatJSON {
		return fmt.Errorf("invalid --format %q (must be %q or %q)", parseFormat, formatMarkdown, formatJSON)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	resolver := delivery.NewResolver(modelsStateDir(cfg), modelsStatePath(cfg), delivery.NewHTTPHubClient())
	ctx := context.Background()
	layoutID := ""
	if cfg.EnableLayout && !parseNoLayout {
		layoutID = cfg.LayoutModelID
	}
	ready, err := resolver.EnsureReady(ctx, cfg.RecognizerModelID, layoutID)
	if err != nil {
		metrics.ObserveModelDelivery(cfg.RecognizerModelID, "fetch_failed")
		return fmt.Errorf("ensure models ready: %w", err)
	}
	metrics.ObserveModelDelivery(cfg.RecognizerModelID, "ready")

	pcfg := pipeline.FromAppConfig(*cfg, ready.RecognizerDir, ready.LayoutDir)
	builder := pipeline.NewBuilder(pcfg).WithEnableLayout(ready.LayoutDir != "")
	p, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	input, err := loadInput(args[0])
	if err != nil {
		return err
	}

	opts := config.DefaultParseOptions()
	opts.IncludeMarkdown = parseFormat == formatMarkdown || parseFormat == formatJSON
	opts.IncludeDiagnostics = !parseNoDiagnostic
	if parseMaxPages > 0 {
		opts.MaxPages = &parseMaxPages
	}

	result, err := p.Parse(ctx, input, opts)
	metrics.ObserveParseOutcome(err)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	metrics.ObserveStageTimingsMS(result.Diagnostics.TimingsMS)
	for range result.Diagnostics.Warnings {
		metrics.ObserveWarning("recognition_failed")
	}

	out, err := renderOutput(result)
	if err != nil {
		return err
	}
	return writeOutput(cmd, out)
}

func loadInput(path string) (pageload.InputDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pageload.InputDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pageload.InputDocument{Kind: pageload.InputPDFBytes, Bytes: data}, nil
	}
	return pageload.InputDocument{Kind: pageload.InputImageBytes, Bytes: data}, nil
}

func renderOutput(result pipeline.Result) (string, error) {
	if parseFormat == formatMarkdown {
		return result.Markdown, nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

func writeOutput(cmd *cobra.Command, out string) error {
	if parseOutputFile == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	}
	return os.WriteFile(parseOutputFile, []byte(out+"\n"), 0o644)
}

func modelsStateDir(cfg *config.Config) string {
	if cfg.ModelsDir != "" {
		return cfg.ModelsDir
	}
	return filepath.Join(os.TempDir(), "docreader", "models")
}

func modelsStatePath(cfg *config.Config) string {
	return filepath.Join(modelsStateDir(cfg), "delivery-state.json")
}
