package cmsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadCMSFile(t *testing.T) {
	t.Parallel()

	local := filepath.Join(t.TempDir(), "main.css")
	require.NoError(t, os.WriteFile(local, []byte("body{}"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/content/filemapper/v1/upload/my-theme/css/main.css", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("portalId"))
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.UploadCMSFile(context.Background(), 5, local, "my-theme/css/main.css"))
}

func TestMoveFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/content/filemapper/v1/rename/old/a.html", r.URL.Path)
		assert.Equal(t, "new/b.html", r.URL.Query().Get("path"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.MoveFile(context.Background(), 5, "/old/a.html", "/new/b.html"))
}

func TestMoveFile_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.MoveFile(context.Background(), 5, "a", "b")
	require.ErrorIs(t, err, ErrNotFound)
}
