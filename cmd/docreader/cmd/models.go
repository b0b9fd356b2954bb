package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docreader-go/docreader/internal/delivery"
	"github.com/docreader-go/docreader/internal/metrics"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage recognizer/layout model snapshots",
}

var modelsEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Fetch and integrity-check the configured recognizer/layout model snapshots",
	Args:  cobra.NoArgs,
	RunE:  runModelsEnsure,
}

var modelsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the configured model snapshots are present and unmodified, without any network access",
	Args:  cobra.NoArgs,
	RunE:  runModelsVerify,
}

func init() {
	modelsCmd.AddCommand(modelsEnsureCmd, modelsVerifyCmd)
	rootCmd.AddCommand(modelsCmd)
}

func runModelsEnsure(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	resolver := delivery.NewResolver(modelsStateDir(cfg), modelsStatePath(cfg), delivery.NewHTTPHubClient())
	layoutID := ""
	if cfg.EnableLayout {
		layoutID = cfg.LayoutModelID
	}
	ready, err := resolver.EnsureReady(context.Background(), cfg.RecognizerModelID, layoutID)
	if err != nil {
		metrics.ObserveModelDelivery(cfg.RecognizerModelID, "fetch_failed")
		return err
	}
	metrics.ObserveModelDelivery(cfg.RecognizerModelID, "ready")

	fmt.Fprintf(cmd.OutOrStdout(), "recognizer: %s\n", ready.RecognizerDir)
	if ready.LayoutDir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "layout: %s\n", ready.LayoutDir)
	}
	return nil
}

func runModelsVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	resolver := delivery.NewResolver(modelsStateDir(cfg), modelsStatePath(cfg), delivery.NewHTTPHubClient())
	layoutID := ""
	if cfg.EnableLayout {
		layoutID = cfg.LayoutModelID
	}
	if err := resolver.VerifyOfflineReadiness(cfg.RecognizerModelID, layoutID); err != nil {
		metrics.ObserveModelDelivery(cfg.RecognizerModelID, "verify_failed")
		return err
	}
	metrics.ObserveModelDelivery(cfg.RecognizerModelID, "ready")
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
