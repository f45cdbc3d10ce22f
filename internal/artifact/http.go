package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

const (
	defaultFetchTimeout = 60 * time.Second
	lockRetryDelay      = 50 * time.Millisecond
)

// HTTPSource downloads the artifact from a base URL into a cache
// directory. Files already present in the cache are reused. Every request
// is made once; there are no retries.
type HTTPSource struct {
	BaseURL  string
	Files    Files
	CacheDir string

	client *resty.Client
}

func NewHTTPSource(baseURL string, opts Options) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}

	client := resty.New().
		SetRetryCount(0).
		SetTimeout(timeout).
		SetHeader("User-Agent", "recycle-api")

	return &HTTPSource{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Files:    opts.Files.withDefaults(),
		CacheDir: cacheDir,
		client:   client,
	}
}

func (s *HTTPSource) String() string {
	return s.BaseURL
}

// Dir is the cache directory used for this source's files.
func (s *HTTPSource) Dir() string {
	sum := sha256.Sum256([]byte(s.BaseURL))
	return filepath.Join(s.CacheDir, hex.EncodeToString(sum[:8]))
}

func (s *HTTPSource) Fetch(ctx context.Context) (Bundle, error) {
	dir := s.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Bundle{}, fmt.Errorf("failed to create cache dir: %w", err)
	}

	// Other processes sharing the cache wait here instead of writing the
	// same files.
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to lock cache dir: %w", err)
	}
	if !locked {
		return Bundle{}, errors.New("cache dir is locked by another download")
	}
	defer lock.Unlock()

	metadataPath, err := s.download(ctx, dir, s.Files.Metadata)
	if err != nil {
		return Bundle{}, err
	}
	modelPath, err := s.download(ctx, dir, s.Files.Model)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{ModelPath: modelPath, MetadataPath: metadataPath}, nil
}

// Evict removes the cached files so the next Fetch downloads them again.
func (s *HTTPSource) Evict() error {
	dir := s.Dir()
	var errs []error
	for _, name := range []string{s.Files.Metadata, s.Files.Model} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	log.WithField("dir", dir).Warn("[Artifact] Evicted cached files")
	return errors.Join(errs...)
}

func (s *HTTPSource) download(ctx context.Context, dir, name string) (string, error) {
	dest := filepath.Join(dir, name)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.WithField("file", dest).Debug("[Artifact] Using cached file")
		return dest, nil
	}

	fileURL := s.BaseURL + "/" + name
	partial := dest + ".part"
	start := time.Now()

	resp, err := s.client.R().
		SetContext(ctx).
		SetOutput(partial).
		Get(fileURL)
	if err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	if resp.IsError() {
		os.Remove(partial)
		return "", fmt.Errorf("failed to download %s: HTTP %d", fileURL, resp.StatusCode())
	}

	info, err := os.Stat(partial)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", partial, err)
	}
	if info.Size() == 0 {
		os.Remove(partial)
		return "", fmt.Errorf("downloaded %s is empty", fileURL)
	}
	if err := os.Rename(partial, dest); err != nil {
		return "", fmt.Errorf("failed to move %s into cache: %w", name, err)
	}

	log.WithFields(log.Fields{
		"url":     fileURL,
		"size":    humanize.Bytes(uint64(info.Size())),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("[Artifact] Downloaded")
	return dest, nil
}
