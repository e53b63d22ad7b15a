package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/Brownie44l1/leaf-api/internal/config"
)

// Source retrieves the artifact bytes from remote storage.
type Source interface {
	Name() string
	Fetch(ctx context.Context, w io.Writer) error
}

// SourceFromConfig returns the configured source, or nil. Google Drive wins
// when both are set.
func SourceFromConfig(cfg config.RemoteConfig, client *http.Client) Source {
	switch {
	case cfg.GoogleDriveID != "":
		return &DriveSource{FileID: cfg.GoogleDriveID, APIKey: cfg.GoogleAPIKey, Client: client}
	case cfg.HuggingFaceRepo != "":
		return &HubSource{
			Repo:     cfg.HuggingFaceRepo,
			Filename: cfg.HuggingFaceFilename,
			Revision: cfg.HuggingFaceRevision,
			Token:    cfg.HuggingFaceToken,
			Client:   client,
		}
	default:
		return nil
	}
}

const drivePublicURL = "https://drive.usercontent.google.com/download"

// DriveSource downloads a shared Google Drive file. With an API key it
// goes through the Drive v3 API, otherwise through the public link.
type DriveSource struct {
	FileID string
	APIKey string
	Client *http.Client

	// Endpoint and PublicURL override Google hosts in tests.
	Endpoint  string
	PublicURL string
}

func (d *DriveSource) Name() string {
	id := d.FileID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	return "google drive (" + id + ")"
}

func (d *DriveSource) Fetch(ctx context.Context, w io.Writer) error {
	if d.APIKey != "" {
		return d.fetchAPI(ctx, w)
	}
	return d.fetchPublic(ctx, w)
}

func (d *DriveSource) fetchAPI(ctx context.Context, w io.Writer) error {
	opts := []option.ClientOption{option.WithAPIKey(d.APIKey)}
	if d.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(d.Endpoint))
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create drive client: %w", err)
	}

	resp, err := srv.Files.Get(d.FileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("drive download: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

func (d *DriveSource) fetchPublic(ctx context.Context, w io.Writer) error {
	base := d.PublicURL
	if base == "" {
		base = drivePublicURL
	}
	q := url.Values{}
	q.Set("id", d.FileID)
	q.Set("export", "download")
	q.Set("confirm", "t")

	resp, err := get(ctx, d.Client, base+"?"+q.Encode(), "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drive answers with an HTML page when the file is private or missing.
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/html" {
		return errors.New("drive returned an HTML page; is the file shared publicly?")
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

const hubURL = "https://huggingface.co"

// HubSource downloads a file from a Hugging Face Hub model repository.
type HubSource struct {
	Repo     string // owner/name
	Filename string
	Revision string
	Token    string
	Client   *http.Client

	// BaseURL overrides the hub host in tests.
	BaseURL string
}

func (h *HubSource) Name() string {
	return "hugging face (" + h.Repo + ")"
}

func (h *HubSource) URL() string {
	base := h.BaseURL
	if base == "" {
		base = hubURL
	}
	rev := h.Revision
	if rev == "" {
		rev = "main"
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		strings.TrimRight(base, "/"), h.Repo, url.PathEscape(rev), h.Filename)
}

func (h *HubSource) Fetch(ctx context.Context, w io.Writer) error {
	resp, err := get(ctx, h.Client, h.URL(), h.Token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

func get(ctx context.Context, client *http.Client, rawURL, token string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return resp, nil
}

// fetchArtifact downloads src into a temporary file next to path and
// renames it into place. Nothing is left at path on failure.
func fetchArtifact(ctx context.Context, path string, src Source) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temporary file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	cw := &countingWriter{w: tmp}
	if err := src.Fetch(ctx, cw); err != nil {
		return 0, err
	}
	if cw.n == 0 {
		return 0, errors.New("downloaded artifact is empty")
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("move artifact into place: %w", err)
	}
	committed = true
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
