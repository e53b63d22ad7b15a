package model

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leaf-api/internal/config"
)

func TestSourceFromConfig(t *testing.T) {
	assert.Nil(t, SourceFromConfig(config.RemoteConfig{}, nil))

	src := SourceFromConfig(config.RemoteConfig{HuggingFaceRepo: "org/leaf", HuggingFaceFilename: "m.onnx"}, nil)
	require.IsType(t, &HubSource{}, src)

	src = SourceFromConfig(config.RemoteConfig{GoogleDriveID: "abc", HuggingFaceRepo: "org/leaf"}, nil)
	require.IsType(t, &DriveSource{}, src)
}

func TestHubSourceURL(t *testing.T) {
	h := &HubSource{Repo: "org/leaf", Filename: "best_model.onnx"}
	assert.Equal(t, "https://huggingface.co/org/leaf/resolve/main/best_model.onnx", h.URL())

	h.Revision = "v2"
	h.BaseURL = "http://localhost:1/"
	assert.Equal(t, "http://localhost:1/org/leaf/resolve/v2/best_model.onnx", h.URL())
}

func TestHubSourceFetch(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	h := &HubSource{Repo: "org/leaf", Filename: "best_model.onnx", Token: "hf_secret", Client: srv.Client(), BaseURL: srv.URL}
	var buf bytes.Buffer
	require.NoError(t, h.Fetch(context.Background(), &buf))

	assert.Equal(t, "weights", buf.String())
	assert.Equal(t, "/org/leaf/resolve/main/best_model.onnx", gotPath)
	assert.Equal(t, "Bearer hf_secret", gotAuth)
}

func TestHubSourceFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	h := &HubSource{Repo: "org/leaf", Filename: "missing.onnx", Client: srv.Client(), BaseURL: srv.URL}
	err := h.Fetch(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDriveSourcePublicDownload(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.URL.Query().Get("id")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	d := &DriveSource{FileID: "file-123", Client: srv.Client(), PublicURL: srv.URL}
	var buf bytes.Buffer
	require.NoError(t, d.Fetch(context.Background(), &buf))

	assert.Equal(t, "weights", buf.String())
	assert.Equal(t, "file-123", gotID)
}

func TestDriveSourceRejectsHTMLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>sign in</html>"))
	}))
	defer srv.Close()

	d := &DriveSource{FileID: "private", Client: srv.Client(), PublicURL: srv.URL}
	var buf bytes.Buffer
	err := d.Fetch(context.Background(), &buf)
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestDriveSourceAPIDownload(t *testing.T) {
	var gotPath, gotAlt, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAlt = r.URL.Query().Get("alt")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	d := &DriveSource{FileID: "file-123", APIKey: "api-key", Endpoint: srv.URL + "/drive/v3/"}
	var buf bytes.Buffer
	require.NoError(t, d.Fetch(context.Background(), &buf))

	assert.Equal(t, "weights", buf.String())
	assert.Equal(t, "/drive/v3/files/file-123", gotPath)
	assert.Equal(t, "media", gotAlt)
	assert.Equal(t, "api-key", gotKey)
}

func TestDriveSourceName(t *testing.T) {
	d := &DriveSource{FileID: "1AbCdEfGhIjKlMn"}
	assert.Equal(t, "google drive (1AbCdEfG...)", d.Name())
}
