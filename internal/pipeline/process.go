package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/docreader-go/docreader/internal/config"
	"github.com/docreader-go/docreader/internal/crop"
	"github.com/docreader-go/docreader/internal/docerr"
	"github.com/docreader-go/docreader/internal/formatter"
	"github.com/docreader-go/docreader/internal/layout"
	"github.com/docreader-go/docreader/internal/pageload"
	"github.com/docreader-go/docreader/internal/recognizer"
)

// Parse runs the full document-understanding pipeline over input per
// opts, implementing spec §4.1's orchestrator contract.
func (p *Pipeline) Parse(ctx context.Context, input pageload.InputDocument, opts config.ParseOptions) (Result, error) {
	total := time.Now()
	timings := map[string]time.Duration{}
	var warnings []string
	var warnMu sync.Mutex
	addWarning := func(s string) {
		warnMu.Lock()
		warnings = append(warnings, s)
		warnMu.Unlock()
	}

	if err := checkCancellation(ctx); err != nil {
		return Result{}, err
	}

	effectiveCap, hasCap := config.EffectiveMaxPages(opts.MaxPages, p.cfg.DefaultMaxPages)
	pageCap := 0
	if hasCap {
		pageCap = effectiveCap
	}

	loadStart := time.Now()
	pages, err := pageload.Load(input, pageCap, p.cfg.PDFDPI, p.cfg.PDFMaxRenderedLongSide)
	timings["page_load"] = time.Since(loadStart)
	if err != nil {
		return Result{}, err
	}

	layoutEnabled := p.cfg.EnableLayout && p.Detector != nil
	pageResults := make([]PageResult, len(pages))

	for i, page := range pages {
		if err := checkCancellation(ctx); err != nil {
			return Result{}, err
		}

		var regions []layout.Region
		if layoutEnabled {
			if err := checkCancellation(ctx); err != nil {
				return Result{}, err
			}
			detected, t, err := p.Detector.DetectWithTimings(page.Image)
			timings["layout_preprocess"] += t.Preprocess
			timings["layout_inference"] += t.Inference
			timings["layout_postprocess"] += t.Postprocess
			if err != nil {
				return Result{}, docerr.New(docerr.InvalidConfiguration, "pipeline.Parse", err)
			}
			regions = detected
		}

		records, err := p.processPage(ctx, i, page, regions, layoutEnabled, timings, addWarning)
		if err != nil {
			return Result{}, err
		}
		pageResults[i] = PageResult{Regions: records}
	}

	timings["total"] = time.Since(total)

	var markdown string
	if opts.IncludeMarkdown {
		markdown = formatter.Format(toFormatterPages(pageResults))
	}

	diag := DiagnosticBundle{}
	if opts.IncludeDiagnostics {
		diag.Warnings = warnings
		diag.TimingsMS = toMillis(timings, layoutEnabled)
		diag.Metadata = p.metadata(len(pages), effectiveCap, hasCap, opts)
	}

	return Result{Pages: pageResults, Markdown: markdown, Diagnostics: diag}, nil
}

func checkCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return docerr.New(docerr.Cancelled, "pipeline", ctx.Err())
	default:
		return nil
	}
}

// processPage runs the crop+recognize fan-out for one page, returning
// region records ordered by their layout-postprocess position (or a single
// whole-page record when layout is disabled).
func (p *Pipeline) processPage(
	ctx context.Context,
	pageIndex int,
	page pageload.Page,
	regions []layout.Region,
	layoutEnabled bool,
	timings map[string]time.Duration,
	addWarning func(string),
) ([]RegionRecord, error) {
	if !layoutEnabled {
		return p.recognizeWholePage(ctx, pageIndex, page, timings, addWarning)
	}
	return p.recognizeRegions(ctx, pageIndex, page, regions, timings, addWarning)
}

func (p *Pipeline) recognizeWholePage(
	ctx context.Context,
	pageIndex int,
	page pageload.Page,
	timings map[string]time.Duration,
	addWarning func(string),
) ([]RegionRecord, error) {
	if err := checkCancellation(ctx); err != nil {
		return nil, err
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, docerr.New(docerr.Cancelled, "pipeline.recognizeWholePage", err)
	}
	defer p.limiter.Release()

	start := time.Now()
	content, recErr := p.Recognizer.Recognize(page.Image, "")
	addTimingMu.Lock()
	timings["ocr_inference"] += time.Since(start)
	addTimingMu.Unlock()
	if recErr != nil {
		addWarning(fmt.Sprintf("page[%d] region[0] recognition failed: %v", pageIndex, recErr))
		content = ""
	}

	postStart := time.Now()
	content = cleanRecognizedText(content)
	addTimingMu.Lock()
	timings["ocr_postprocess"] += time.Since(postStart)
	addTimingMu.Unlock()

	return []RegionRecord{{
		Index:       0,
		NativeLabel: "",
		Task:        "",
		BBox:        [4]float64{0, 0, 1000, 1000},
		Content:     content,
	}}, nil
}

// addTimingMu guards the shared timings map when regions recognize in
// parallel; it is package-level because the map itself is shared across
// goroutines spawned from Parse for the duration of one call.
var addTimingMu sync.Mutex

func (p *Pipeline) recognizeRegions(
	ctx context.Context,
	pageIndex int,
	page pageload.Page,
	regions []layout.Region,
	timings map[string]time.Duration,
	addWarning func(string),
) ([]RegionRecord, error) {
	records := make([]RegionRecord, len(regions))
	var wg sync.WaitGroup
	var firstCancel error
	var cancelMu sync.Mutex

	for i, r := range regions {
		records[i] = RegionRecord{
			Index:       i,
			NativeLabel: r.Label,
			Task:        r.Task,
			BBox:        r.NormalizedBox,
		}

		cropStart := time.Now()
		cropped, cropErr := crop.RegionWithMask(page.Image,
			int(r.Box.MinX), int(r.Box.MinY), int(r.Box.MaxX), int(r.Box.MaxY), toCropPolygon(r.Polygon))
		addTimingMu.Lock()
		timings["ocr_preprocess"] += time.Since(cropStart)
		addTimingMu.Unlock()
		if cropErr != nil {
			addWarning(fmt.Sprintf("page[%d] region[%d] crop failed: %v", pageIndex, i, cropErr))
			continue
		}

		wg.Add(1)
		go func(key RecognitionJobKey, img image.Image, task string) {
			defer wg.Done()
			if err := checkCancellation(ctx); err != nil {
				cancelMu.Lock()
				if firstCancel == nil {
					firstCancel = err
				}
				cancelMu.Unlock()
				return
			}
			if err := p.limiter.Acquire(ctx); err != nil {
				cancelMu.Lock()
				if firstCancel == nil {
					firstCancel = docerr.New(docerr.Cancelled, "pipeline.recognizeRegions", err)
				}
				cancelMu.Unlock()
				return
			}
			defer p.limiter.Release()

			start := time.Now()
			content, recErr := p.Recognizer.Recognize(img, task)
			addTimingMu.Lock()
			timings["ocr_inference"] += time.Since(start)
			addTimingMu.Unlock()
			if recErr != nil {
				addWarning(fmt.Sprintf("page[%d] region[%d] recognition failed: %v", pageIndex, key.RegionPosition, recErr))
				return
			}

			postStart := time.Now()
			records[key.RegionPosition].Content = cleanRecognizedText(content)
			addTimingMu.Lock()
			timings["ocr_postprocess"] += time.Since(postStart)
			addTimingMu.Unlock()
		}(RecognitionJobKey{PageIndex: pageIndex, RegionPosition: i}, cropped, r.Task)
	}

	wg.Wait()
	if firstCancel != nil {
		return nil, firstCancel
	}
	return records, nil
}

// cleanRecognizedText applies the recognizer's generic text cleanup (NFC
// normalization, zero-width/control stripping, whitespace collapse) before
// the region's content reaches the formatter.
func cleanRecognizedText(s string) string {
	return recognizer.PostProcessText(s, recognizer.DefaultCleanOptions())
}

func toFormatterPages(pages []PageResult) []formatter.Page {
	out := make([]formatter.Page, len(pages))
	for i, pg := range pages {
		regions := make([]formatter.Region, len(pg.Regions))
		for j, r := range pg.Regions {
			regions[j] = formatter.Region{
				Index:       r.Index,
				NativeLabel: r.NativeLabel,
				BBox:        r.BBox,
				Content:     r.Content,
			}
		}
		out[i] = formatter.Page{Index: i, Regions: regions}
	}
	return out
}

func toCropPolygon(pts []layout.Point) []crop.Point {
	out := make([]crop.Point, len(pts))
	for i, p := range pts {
		out[i] = crop.Point{X: p.X, Y: p.Y}
	}
	return out
}

func toMillis(timings map[string]time.Duration, layoutEnabled bool) map[string]int64 {
	keys := []string{"page_load", "layout_preprocess", "layout_inference", "layout_postprocess",
		"ocr_preprocess", "ocr_inference", "ocr_postprocess", "total"}
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if !layoutEnabled && (k == "layout_preprocess" || k == "layout_inference" || k == "layout_postprocess") {
			continue
		}
		d := timings[k]
		if !layoutEnabled && k == "ocr_preprocess" {
			d = 0
		}
		out[k] = d.Milliseconds()
	}
	return out
}

func (p *Pipeline) metadata(pageCount, effectiveCap int, hasCap bool, opts config.ParseOptions) map[string]any {
	m := map[string]any{
		"layoutEnabled":             p.cfg.EnableLayout && p.Detector != nil,
		"pageCount":                 pageCount,
		"maxConcurrentRecognitions": p.cfg.MaxConcurrentRecognitions,
		"defaultMaxPages":           p.cfg.DefaultMaxPages,
		"pdfDPI":                    p.cfg.PDFDPI,
		"pdfMaxRenderedLongSide":    p.cfg.PDFMaxRenderedLongSide,
	}
	if opts.MaxPages != nil {
		m["maxPagesOption"] = *opts.MaxPages
	} else {
		m["maxPagesOption"] = nil
	}
	if hasCap {
		m["effectiveMaxPages"] = effectiveCap
	} else {
		m["effectiveMaxPages"] = nil
	}
	for name, prompt := range map[string]string{
		"noLayout": p.cfg.Prompts.NoLayout,
		"text":     p.cfg.Prompts.Text,
		"table":    p.cfg.Prompts.Table,
		"formula":  p.cfg.Prompts.Formula,
	} {
		m["prompt."+name+"Hash"] = promptHash(prompt)
	}
	return m
}

// PromptHash returns the first 16 hex characters of SHA-256(prompt), the
// same value the orchestrator reports under
// metadata["prompt.<name>Hash"] (spec §4.1).
func PromptHash(prompt string) string {
	return promptHash(prompt)
}

func promptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}
