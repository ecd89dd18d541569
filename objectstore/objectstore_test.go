package objectstore

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func TestInspect(t *testing.T) {
	ct, ext, err := Inspect(Blob{Name: "a.png", Data: pngPixel}, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, ".png", ext)

	_, _, err = Inspect(Blob{Name: "empty"}, 0)
	assert.ErrorIs(t, err, ErrRejected)

	_, _, err = Inspect(Blob{Name: "big.png", Data: pngPixel}, 10)
	assert.ErrorIs(t, err, ErrRejected)

	_, _, err = Inspect(Blob{Name: "notes.txt", Data: []byte("plain text, not an image")}, 0)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestLocalDisk_Upload(t *testing.T) {
	dir := t.TempDir()
	l := NewLocalDisk(dir, "/static/uploads/", 0)
	l.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }

	url, err := l.Upload(context.Background(), Blob{Name: "a.png", Data: pngPixel}, FolderIssueImages)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/static/uploads/issue_images/2024/03/09/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	rel := strings.TrimPrefix(url, "/static/uploads/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, pngPixel, data)
}

func TestLocalDisk_RejectsBadFolder(t *testing.T) {
	l := NewLocalDisk(t.TempDir(), "", 0)
	_, err := l.Upload(context.Background(), Blob{Name: "a.png", Data: pngPixel}, "../etc")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestCloudinary_Upload(t *testing.T) {
	var gotPreset, gotFolder string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPreset = r.FormValue("upload_preset")
		gotFolder = r.FormValue("folder")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, pngPixel, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"secure_url":"https://cdn.example/img.png"}`))
	}))
	defer srv.Close()

	c := NewCloudinary("demo", "preset", 0, WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	url, err := c.Upload(context.Background(), Blob{Name: "a.png", Data: pngPixel}, FolderIssueImages)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/img.png", url)
	assert.Equal(t, "preset", gotPreset)
	assert.Equal(t, FolderIssueImages, gotFolder)
}

func TestCloudinary_FailureKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, ErrQuota},
		{"permission", http.StatusUnauthorized, `{"error":{"message":"bad preset"}}`, ErrQuota},
		{"server", http.StatusBadGateway, `oops`, ErrNetwork},
		{"rejected", http.StatusBadRequest, `{"error":{"message":"invalid image"}}`, ErrRejected},
		{"malformed", http.StatusOK, `not json`, ErrMalformedResponse},
		{"missing url", http.StatusOK, `{"public_id":"x"}`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewCloudinary("demo", "preset", 0, WithEndpoint(srv.URL))
			_, err := c.Upload(context.Background(), Blob{Name: "a.png", Data: pngPixel}, FolderIssueImages)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCloudinary_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c := NewCloudinary("demo", "preset", 0, WithEndpoint(endpoint))
	_, err := c.Upload(context.Background(), Blob{Name: "a.png", Data: pngPixel}, FolderIssueImages)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsTransient(err))
}
