package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// HubClient resolves a remote model id to a revision and a set of files,
// and fetches individual files by relative path. No pack example ships a
// model-hub client to ground a replacement on, so the interface is kept
// narrow and the default implementation (HTTPHubClient) talks to a
// Hugging-Face-compatible resolve API over stdlib net/http; EnsureReady
// and VerifyOfflineReadiness depend only on this interface, so tests
// substitute a fake and never touch the network.
type HubClient interface {
	// Revision returns the remote id's current revision (commit sha or
	// tag), used to key the local snapshot directory.
	Revision(ctx context.Context, modelID string) (string, error)
	// ListFiles returns every relative file path in modelID's snapshot at
	// revision, before manifest-glob filtering.
	ListFiles(ctx context.Context, modelID, revision string) ([]string, error)
	// FetchFile downloads modelID's relativePath at revision into
	// destPath, returning the remote ETag header value for that file
	// (un-normalized).
	FetchFile(ctx context.Context, modelID, revision, relativePath, destPath string) (etag string, err error)
}

// HTTPHubClient implements HubClient against a Hugging-Face-compatible
// hub: GET {baseURL}/api/models/{id} for the revision sha and file list,
// GET {baseURL}/{id}/resolve/{revision}/{path} for file
// contents, mirroring the resolve-and-download split every HF-style hub
// exposes.
type HTTPHubClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPHubClient returns a client pointed at the public Hugging Face
// hub, using http.DefaultClient.
func NewHTTPHubClient() *HTTPHubClient {
	return &HTTPHubClient{BaseURL: "https://huggingface.co", Client: http.DefaultClient}
}

type hubModelInfo struct {
	SHA      string `json:"sha"`
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

func (c *HTTPHubClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *HTTPHubClient) modelInfo(ctx context.Context, modelID string) (hubModelInfo, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s", c.BaseURL, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return hubModelInfo{}, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return hubModelInfo{}, fmt.Errorf("delivery: fetch model info for %q: %w", modelID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hubModelInfo{}, fmt.Errorf("delivery: model info for %q: unexpected status %s", modelID, resp.Status)
	}
	var info hubModelInfo
	if err := decodeJSON(resp.Body, &info); err != nil {
		return hubModelInfo{}, fmt.Errorf("delivery: decode model info for %q: %w", modelID, err)
	}
	return info, nil
}

func (c *HTTPHubClient) Revision(ctx context.Context, modelID string) (string, error) {
	info, err := c.modelInfo(ctx, modelID)
	if err != nil {
		return "", err
	}
	if info.SHA == "" {
		return "", fmt.Errorf("delivery: %q has no revision sha", modelID)
	}
	return info.SHA, nil
}

func (c *HTTPHubClient) ListFiles(ctx context.Context, modelID, _ string) ([]string, error) {
	info, err := c.modelInfo(ctx, modelID)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(info.Siblings))
	for _, s := range info.Siblings {
		files = append(files, s.RFilename)
	}
	return files, nil
}

func (c *HTTPHubClient) FetchFile(ctx context.Context, modelID, revision, relativePath, destPath string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/resolve/%s/%s", c.BaseURL, modelID, revision, url.PathEscape(relativePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("delivery: fetch %q/%q: %w", modelID, relativePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("delivery: fetch %q/%q: unexpected status %s", modelID, relativePath, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("delivery: create destination dir: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("delivery: create destination file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("delivery: write destination file: %w", err)
	}
	return resp.Header.Get("ETag"), nil
}

// isLocalPath reports whether id names an existing local directory rather
// than a hub model id (spec §4.6 "a local-path id is used as-is").
func isLocalPath(id string) bool {
	if id == "" || strings.Contains(id, "://") {
		return false
	}
	info, err := os.Stat(id)
	return err == nil && info.IsDir()
}

func sanitizeModelID(modelID string) string {
	return strings.ReplaceAll(path.Clean(modelID), "/", "__")
}
