package support

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// fakeHubClient serves a fixed in-memory snapshot so these scenarios
// never touch the network.
type fakeHubClient struct {
	revision   string
	files      map[string][]byte
	etags      map[string]string
	fetchCount int
}

func newFakeHubWithWeights() *fakeHubClient {
	weights := []byte("pretend-safetensors-weights")
	config := []byte(`{"hidden_size": 1}`)
	return &fakeHubClient{
		revision: "rev1",
		files: map[string][]byte{
			"config.json":       config,
			"model.safetensors": weights,
		},
		etags: map[string]string{
			"config.json":       `"not-a-sha"`,
			"model.safetensors": `W/"` + sha256Hex(weights) + `"`,
		},
	}
}

func newFakeHubWithoutWeights() *fakeHubClient {
	return &fakeHubClient{
		revision: "rev1",
		files:    map[string][]byte{"config.json": []byte("{}")},
		etags:    map[string]string{"config.json": `"x"`},
	}
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
	f.fetchCount++
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
