package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docreader-go/docreader/internal/docerr"
)

// DefaultGlobs is the manifest's default filename-pattern allowlist (spec
// §4.6).
var DefaultGlobs = []string{"*.json", "*.safetensors", "*.txt", "*.model", "*.tiktoken", "*.jinja"}

// DefaultRequiredFiles names the files every recognized snapshot must
// carry alongside its weights.
var DefaultRequiredFiles = []string{"config.json"}

// ReadyModels holds the resolved local directories ensure_ready returns
// for the recognizer and (optionally) the layout detector.
type ReadyModels struct {
	RecognizerDir string
	LayoutDir     string
}

// Resolver fetches and verifies model snapshots, caching per-process
// manifest lookups (keyed by model id and revision) in a 32-entry LRU so
// that repeated EnsureReady calls for the same snapshot don't refetch its
// file listing.
type Resolver struct {
	ModelsDir string
	StatePath string
	Client    HubClient

	manifests *lru.Cache[string, []string]
}

// NewResolver builds a Resolver backed by client, storing fetched
// snapshots under modelsDir and persisting delivery state at statePath.
func NewResolver(modelsDir, statePath string, client HubClient) *Resolver {
	cache, err := lru.New[string, []string](32)
	if err != nil {
		// Only returns an error for a non-positive size, which 32 never is.
		panic(err)
	}
	return &Resolver{ModelsDir: modelsDir, StatePath: statePath, Client: client, manifests: cache}
}

// EnsureReady resolves recognizerID and layoutID to local directories,
// fetching and integrity-checking remote snapshots as needed (spec
// §4.6). layoutID may be empty when layout detection is disabled.
func (r *Resolver) EnsureReady(ctx context.Context, recognizerID, layoutID string) (ReadyModels, error) {
	correlationID := uuid.NewString()

	recDir, err := r.ensureOne(ctx, correlationID, recognizerID)
	if err != nil {
		return ReadyModels{}, err
	}
	out := ReadyModels{RecognizerDir: recDir}
	if layoutID != "" {
		layoutDir, err := r.ensureOne(ctx, correlationID, layoutID)
		if err != nil {
			return ReadyModels{}, err
		}
		out.LayoutDir = layoutDir
	}
	return out, nil
}

func (r *Resolver) ensureOne(ctx context.Context, correlationID, modelID string) (string, error) {
	if isLocalPath(modelID) {
		slog.Debug("delivery: using local model path as-is", "model_id", modelID, "correlation_id", correlationID)
		return modelID, nil
	}

	revision, err := r.Client.Revision(ctx, modelID)
	if err != nil {
		return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
	}

	files, err := r.manifestFiles(ctx, modelID, revision)
	if err != nil {
		return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
	}
	if err := validateManifest(files); err != nil {
		return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
	}

	snapshotDir := filepath.Join(r.ModelsDir, sanitizeModelID(modelID), revision)
	entries := make([]FileEntry, 0, len(files))
	for _, relPath := range files {
		destPath := filepath.Join(snapshotDir, filepath.FromSlash(relPath))
		remoteETag, err := r.Client.FetchFile(ctx, modelID, revision, relPath, destPath)
		if err != nil {
			return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
		}

		digest, err := sha256File(destPath)
		if err != nil {
			return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
		}

		normalized := normalizeETag(remoteETag)
		if isSHA256Hex(normalized) {
			if normalized != digest {
				return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady",
					fmt.Errorf("checksum mismatch for %s/%s: expected %s, got %s", modelID, relPath, normalized, digest))
			}
			entries = append(entries, FileEntry{RelativePath: relPath, ETag: normalized})
		} else {
			// The hub's ETag isn't itself a SHA-256 (e.g. a weak validator
			// on a non-LFS file); persist what we actually downloaded.
			entries = append(entries, FileEntry{RelativePath: relPath, ETag: digest})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })

	st, err := loadState(r.StatePath)
	if err != nil {
		return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
	}
	st.Models[modelID] = ModelEntry{
		Revision:     revision,
		SnapshotPath: snapshotDir,
		UpdatedAtUTC: nowUTC(),
		Files:        entries,
	}
	if err := saveState(r.StatePath, st); err != nil {
		return "", docerr.New(docerr.ModelDeliveryFailed, "delivery.EnsureReady", err)
	}

	slog.Info("delivery: model ready", "model_id", modelID, "revision", revision, "files", len(entries), "correlation_id", correlationID)
	return snapshotDir, nil
}

func (r *Resolver) manifestFiles(ctx context.Context, modelID, revision string) ([]string, error) {
	key := modelID + "@" + revision
	if cached, ok := r.manifests.Get(key); ok {
		return cached, nil
	}
	all, err := r.Client.ListFiles(ctx, modelID, revision)
	if err != nil {
		return nil, err
	}
	filtered := filterManifest(all, DefaultGlobs)
	r.manifests.Add(key, filtered)
	return filtered, nil
}

func filterManifest(files, globs []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		for _, g := range globs {
			if ok, _ := filepath.Match(g, base); ok {
				out = append(out, f)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func validateManifest(files []string) error {
	present := make(map[string]bool, len(files))
	hasWeights := false
	for _, f := range files {
		present[filepath.Base(f)] = true
		if strings.HasSuffix(f, ".safetensors") {
			hasWeights = true
		}
	}
	var missing []string
	for _, req := range DefaultRequiredFiles {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("manifest is missing required files: %s", strings.Join(missing, ", "))
	}
	if !hasWeights {
		return fmt.Errorf("manifest contains no .safetensors weights file")
	}
	return nil
}

// normalizeETag strips a weak-validator prefix and surrounding quotes and
// lowercases the remainder (spec §4.6).
func normalizeETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return strings.ToLower(etag)
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("delivery: open %s for hashing: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("delivery: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyOfflineReadiness reads the persisted delivery state for
// recognizerID and (if set) layoutID without any network access, and
// recomputes the SHA-256 of every integrity path, failing on missing
// state, missing metadata, or a mismatch (spec §4.6).
func (r *Resolver) VerifyOfflineReadiness(recognizerID, layoutID string) error {
	ids := []string{recognizerID}
	if layoutID != "" {
		ids = append(ids, layoutID)
	}
	for _, id := range ids {
		if isLocalPath(id) {
			continue
		}
		if err := r.verifyOne(id); err != nil {
			return docerr.New(docerr.ModelDeliveryFailed, "delivery.VerifyOfflineReadiness", err)
		}
	}
	return nil
}

func (r *Resolver) verifyOne(modelID string) error {
	st, err := loadState(r.StatePath)
	if err != nil {
		return err
	}
	entry, ok := st.Models[modelID]
	if !ok {
		return fmt.Errorf("no delivery state recorded for %q", modelID)
	}
	if len(entry.Files) == 0 {
		return fmt.Errorf("delivery state for %q records no files", modelID)
	}
	for _, file := range entry.Files {
		destPath := filepath.Join(entry.SnapshotPath, filepath.FromSlash(file.RelativePath))
		digest, err := sha256File(destPath)
		if err != nil {
			return fmt.Errorf("%q: %w", modelID, err)
		}
		if digest != file.ETag {
			return fmt.Errorf("%q: checksum mismatch for %s: expected %s, got %s",
				modelID, file.RelativePath, file.ETag, digest)
		}
	}
	return nil
}
