package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docreader-go/docreader/internal/docerr"
)

// fakeHubClient serves a fixed in-memory snapshot, so these tests never
// touch the network.
type fakeHubClient struct {
	revision string
	files    map[string][]byte
	etags    map[string]string // relative path -> ETag header value to report
}

func (f *fakeHubClient) Revision(_ context.Context, _ string) (string, error) {
	return f.revision, nil
}

func (f *fakeHubClient) ListFiles(_ context.Context, _, _ string) ([]string, error) {
	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	return paths, nil
}

func (f *fakeHubClient) FetchFile(_ context.Context, _, _, relativePath, destPath string) (string, error) {
	data, ok := f.files[relativePath]
	if !ok {
		return "", fmt.Errorf("no such file %q", relativePath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", err
	}
	return f.etags[relativePath], nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newFakeSnapshot(weights, config []byte) *fakeHubClient {
	return &fakeHubClient{
		revision: "rev1",
		files: map[string][]byte{
			"config.json":     config,
			"model.safetensors": weights,
		},
		etags: map[string]string{
			"config.json":       `"not-a-sha"`,
			"model.safetensors": `W/"` + sha256Hex(weights) + `"`,
		},
	}
}

func TestEnsureReadyFetchesAndPersistsState(t *testing.T) {
	dir := t.TempDir()
	weights := []byte("weights-bytes")
	config := []byte(`{"hidden_size": 1}`)
	client := newFakeSnapshot(weights, config)

	r := NewResolver(filepath.Join(dir, "models"), filepath.Join(dir, "state.json"), client)
	ready, err := r.EnsureReady(context.Background(), "acme/recognizer", "")
	require.NoError(t, err)
	assert.DirExists(t, ready.RecognizerDir)

	st, err := loadState(r.StatePath)
	require.NoError(t, err)
	entry, ok := st.Models["acme/recognizer"]
	require.True(t, ok)
	assert.Equal(t, "rev1", entry.Revision)
	assert.Len(t, entry.Files, 2)

	// The .safetensors entry verified against a real SHA-256 ETag; the
	// config.json entry falls back to persisting its own on-disk digest.
	for _, f := range entry.Files {
		if f.RelativePath == "model.safetensors" {
			assert.Equal(t, sha256Hex(weights), f.ETag)
		}
		if f.RelativePath == "config.json" {
			assert.Equal(t, sha256Hex(config), f.ETag)
		}
	}
}

func TestEnsureReadyUsesLocalPathAsIs(t *testing.T) {
	localDir := t.TempDir()
	r := NewResolver(t.TempDir(), filepath.Join(t.TempDir(), "state.json"), &fakeHubClient{})
	ready, err := r.EnsureReady(context.Background(), localDir, "")
	require.NoError(t, err)
	assert.Equal(t, localDir, ready.RecognizerDir)
}

func TestEnsureReadyFailsOnChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	weights := []byte("weights-bytes")
	client := newFakeSnapshot(weights, []byte("{}"))
	client.etags["model.safetensors"] = `"` + sha256Hex([]byte("different content")) + `"`

	r := NewResolver(filepath.Join(dir, "models"), filepath.Join(dir, "state.json"), client)
	_, err := r.EnsureReady(context.Background(), "acme/recognizer", "")
	require.Error(t, err)
	assert.Equal(t, docerr.ModelDeliveryFailed, docerr.KindOf(err))
}

func TestEnsureReadyFailsWhenNoSafetensorsPresent(t *testing.T) {
	client := &fakeHubClient{
		revision: "rev1",
		files:    map[string][]byte{"config.json": []byte("{}")},
		etags:    map[string]string{"config.json": `"x"`},
	}
	r := NewResolver(t.TempDir(), filepath.Join(t.TempDir(), "state.json"), client)
	_, err := r.EnsureReady(context.Background(), "acme/recognizer", "")
	require.Error(t, err)
	assert.Equal(t, docerr.ModelDeliveryFailed, docerr.KindOf(err))
}

func TestVerifyOfflineReadinessSucceedsAfterEnsureReady(t *testing.T) {
	dir := t.TempDir()
	client := newFakeSnapshot([]byte("weights-bytes"), []byte("{}"))
	r := NewResolver(filepath.Join(dir, "models"), filepath.Join(dir, "state.json"), client)
	_, err := r.EnsureReady(context.Background(), "acme/recognizer", "")
	require.NoError(t, err)

	assert.NoError(t, r.VerifyOfflineReadiness("acme/recognizer", ""))
}

func TestVerifyOfflineReadinessFailsWhenSnapshotTampered(t *testing.T) {
	dir := t.TempDir()
	client := newFakeSnapshot([]byte("weights-bytes"), []byte("{}"))
	r := NewResolver(filepath.Join(dir, "models"), filepath.Join(dir, "state.json"), client)
	ready, err := r.EnsureReady(context.Background(), "acme/recognizer", "")
	require.NoError(t, err)

	tamperedPath := filepath.Join(ready.RecognizerDir, "model.safetensors")
	require.NoError(t, os.WriteFile(tamperedPath, []byte("flipped a byte"), 0o644))

	err = r.VerifyOfflineReadiness("acme/recognizer", "")
	require.Error(t, err)
	assert.Equal(t, docerr.ModelDeliveryFailed, docerr.KindOf(err))
}

func TestVerifyOfflineReadinessFailsWhenStateMissing(t *testing.T) {
	r := NewResolver(t.TempDir(), filepath.Join(t.TempDir(), "state.json"), &fakeHubClient{})
	err := r.VerifyOfflineReadiness("acme/recognizer", "")
	require.Error(t, err)
	assert.Equal(t, docerr.ModelDeliveryFailed, docerr.KindOf(err))
}

func TestNormalizeETagStripsWeakPrefixAndQuotes(t *testing.T) {
	assert.Equal(t, "abc123", normalizeETag(`W/"ABC123"`))
	assert.Equal(t, "abc123", normalizeETag(`"ABC123"`))
	assert.Equal(t, "abc123", normalizeETag("ABC123"))
}

func TestIsSHA256HexRejectsWrongLength(t *testing.T) {
	assert.False(t, isSHA256Hex("abc"))
	assert.False(t, isSHA256Hex("not-a-sha-but-64-characters-long-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"))
	assert.True(t, isSHA256Hex(sha256Hex([]byte("anything"))))
}

func TestFilterManifestKeepsOnlyAllowedExtensions(t *testing.T) {
	files := []string{"config.json", "model.safetensors", "README.md", "tokenizer.model"}
	out := filterManifest(files, DefaultGlobs)
	assert.ElementsMatch(t, []string{"config.json", "model.safetensors", "tokenizer.model"}, out)
}

func TestValidateManifestRequiresConfigAndWeights(t *testing.T) {
	assert.Error(t, validateManifest([]string{"model.safetensors"}))
	assert.Error(t, validateManifest([]string{"config.json"}))
	assert.NoError(t, validateManifest([]string{"config.json", "model.safetensors"}))
}
