package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	opts := Options{CacheDir: t.TempDir()}

	tests := []struct {
		location string
		want     string
		wantType any
	}{
		{"https://example.com/models/recycle/", "https://example.com/models/recycle", &HTTPSource{}},
		{"http://localhost:9000/m", "http://localhost:9000/m", &HTTPSource{}},
		{"hf://acme/recycle-model", "hf://acme/recycle-model", &HubSource{}},
		{"file:///srv/models", "file:///srv/models", &DirSource{}},
		{"./models", "file://./models", &DirSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			src, err := Parse(tt.location, opts)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, src)
			assert.Equal(t, tt.want, src.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, location := range []string{"", "  ", "ftp://host/model", "hf://only-owner", "hf://a/b/c"} {
		_, err := Parse(location, Options{})
		assert.Error(t, err, location)
	}
}

func TestParseDefaultsFileNames(t *testing.T) {
	src, err := Parse("/srv/models", Options{})
	require.NoError(t, err)
	dir := src.(*DirSource)
	assert.Equal(t, DefaultModelFile, dir.Files.Model)
	assert.Equal(t, DefaultMetadataFile, dir.Files.Metadata)
}

func TestDirSourceFetch(t *testing.T) {
	dir := t.TempDir()
	files := Files{Model: "weights.onnx", Metadata: "meta.json"}

	_, err := NewDirSource(dir, files).Fetch(context.Background())
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "weights.onnx"), []byte("onnx"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte("{}"), 0644))

	b, err := NewDirSource(dir, files).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "weights.onnx"), b.ModelPath)
	assert.Equal(t, filepath.Join(dir, "meta.json"), b.MetadataPath)
}

func newArtifactServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/recycle/model_metadata.json":
			w.Write([]byte(`{"classes":["Cardboard"]}`))
		case "/recycle/model.onnx":
			w.Write([]byte("not really onnx"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSourceDownloadsAndReuses(t *testing.T) {
	var hits atomic.Int64
	srv := newArtifactServer(t, &hits)

	src := NewHTTPSource(srv.URL+"/recycle/", Options{CacheDir: t.TempDir()})
	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), hits.Load())

	meta, err := os.ReadFile(b.MetadataPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"classes":["Cardboard"]}`, string(meta))
	assert.FileExists(t, b.ModelPath)
	assert.NoFileExists(t, b.ModelPath+".part")

	again, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b, again)
	assert.Equal(t, int64(2), hits.Load(), "cached files must not be fetched again")
}

func TestHTTPSourceEvict(t *testing.T) {
	var hits atomic.Int64
	srv := newArtifactServer(t, &hits)

	src := NewHTTPSource(srv.URL+"/recycle", Options{CacheDir: t.TempDir()})
	b, err := src.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, src.Evict())
	assert.NoFileExists(t, b.MetadataPath)
	assert.NoFileExists(t, b.ModelPath)
	require.NoError(t, src.Evict(), "evicting twice is fine")

	_, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), hits.Load())
}

func TestHTTPSourceLockHonorsContext(t *testing.T) {
	var hits atomic.Int64
	srv := newArtifactServer(t, &hits)

	src := NewHTTPSource(srv.URL+"/recycle", Options{CacheDir: t.TempDir()})
	require.NoError(t, os.MkdirAll(src.Dir(), 0755))
	held := flock.New(filepath.Join(src.Dir(), ".lock"))
	require.NoError(t, held.Lock())
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := src.Fetch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int64(0), hits.Load())
}

func TestHTTPSourceMissingFile(t *testing.T) {
	var hits atomic.Int64
	srv := newArtifactServer(t, &hits)

	src := NewHTTPSource(srv.URL+"/elsewhere", Options{CacheDir: t.TempDir()})
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	entries, err := os.ReadDir(src.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, DefaultMetadataFile, e.Name())
		assert.NotEqual(t, DefaultMetadataFile+".part", e.Name())
	}
}

func TestHTTPSourceSingleAttempt(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, Options{CacheDir: t.TempDir(), Timeout: 5 * time.Second})
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestHTTPSourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := NewHTTPSource(url, Options{CacheDir: t.TempDir(), Timeout: 2 * time.Second})
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
}

func TestHubSourceHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHubSource("acme/recycle-model", Options{CacheDir: t.TempDir()}).Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHubSourceStopsWaitingAtDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	src := NewHubSource("acme/recycle-model", Options{CacheDir: t.TempDir()})
	src.downloadFile = func(name string) (string, error) {
		<-release
		return filepath.Join(src.CacheDir, name), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := src.Fetch(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHubSourceFetch(t *testing.T) {
	var calls []string
	src := NewHubSource("acme/recycle-model", Options{CacheDir: t.TempDir()})
	src.downloadFile = func(name string) (string, error) {
		calls = append(calls, name)
		return filepath.Join(src.CacheDir, name), nil
	}

	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultMetadataFile, DefaultModelFile}, calls)
	assert.Equal(t, filepath.Join(src.CacheDir, DefaultModelFile), b.ModelPath)
}
