package pipeline

// RegionRecord is one layout region's final, pipeline-order-indexed state
// after recognition (spec §3 "RegionRecord"): native label, task, page-space
// bounding box, and recognized content (empty on crop/recognition failure).
type RegionRecord struct {
	Index       int        `json:"index"`
	NativeLabel string     `json:"native_label"`
	Task        string     `json:"task"`
	BBox        [4]float64 `json:"bbox"`
	Content     string     `json:"content"`
}

// PageResult holds one page's ordered regions.
type PageResult struct {
	Regions []RegionRecord `json:"regions"`
}

// DiagnosticBundle carries the orchestrator's non-fatal observations: a
// per-failure warning log, per-stage wall-clock timings in milliseconds,
// and free-form metadata (spec §4.1, §3 "DiagnosticBundle").
type DiagnosticBundle struct {
	Warnings  []string         `json:"warnings"`
	TimingsMS map[string]int64 `json:"timings_ms"`
	Metadata  map[string]any   `json:"metadata"`
}

// Result is the orchestrator's public return value (spec §6
// "OCRDocumentResult").
type Result struct {
	Pages       []PageResult     `json:"pages"`
	Markdown    string           `json:"markdown,omitempty"`
	Diagnostics DiagnosticBundle `json:"diagnostics"`
}

// RecognitionJobKey identifies one recognition job so results gathered out
// of completion order can still be written back deterministically (spec §3
// "RecognitionJobKey", §5 "per-region recognition results are joined by
// {page, region_position}").
type RecognitionJobKey struct {
	PageIndex      int
	RegionPosition int
}
