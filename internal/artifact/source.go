// Package artifact fetches the model descriptor and weights from wherever
// they are published and hands back local file paths.
package artifact

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultModelFile    = "model.onnx"
	DefaultMetadataFile = "model_metadata.json"
)

// Files names the two artifact files inside a source.
type Files struct {
	Model    string
	Metadata string
}

func (f Files) withDefaults() Files {
	if f.Model == "" {
		f.Model = DefaultModelFile
	}
	if f.Metadata == "" {
		f.Metadata = DefaultMetadataFile
	}
	return f
}

// Bundle points at a fetched artifact on local disk.
type Bundle struct {
	ModelPath    string
	MetadataPath string
}

// Source retrieves a model artifact.
type Source interface {
	Fetch(ctx context.Context) (Bundle, error)
	String() string
}

// Evicter is implemented by sources that keep a local copy of remote
// files. Evict drops that copy.
type Evicter interface {
	Evict() error
}

// Options configures the sources returned by Parse.
type Options struct {
	Files    Files
	CacheDir string
	Timeout  time.Duration
}

// DefaultCacheDir returns the per-user directory downloads are kept in.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "recycle-api", "models")
}

// Parse picks a Source for location:
//
//	https://host/path, http://host/path   remote directory
//	hf://owner/repo                       Hugging Face Hub repository
//	file:///dir, /dir, ./dir              local directory
func Parse(location string, opts Options) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("model source is empty")
	}
	opts.Files = opts.Files.withDefaults()
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir()
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return NewDirSource(location, opts.Files), nil
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPSource(location, opts), nil
	case "hf":
		repo := strings.Trim(u.Host+u.Path, "/")
		if strings.Count(repo, "/") != 1 {
			return nil, fmt.Errorf("hub source must be hf://owner/repo, got %q", location)
		}
		return NewHubSource(repo, opts), nil
	case "file":
		return NewDirSource(u.Path, opts.Files), nil
	default:
		return nil, fmt.Errorf("unsupported model source scheme %q", u.Scheme)
	}
}

// DirSource serves an artifact that already sits in a local directory.
type DirSource struct {
	Dir   string
	Files Files
}

func NewDirSource(dir string, files Files) *DirSource {
	return &DirSource{Dir: dir, Files: files.withDefaults()}
}

func (s *DirSource) Fetch(ctx context.Context) (Bundle, error) {
	b := Bundle{
		ModelPath:    filepath.Join(s.Dir, s.Files.Model),
		MetadataPath: filepath.Join(s.Dir, s.Files.Metadata),
	}
	for _, p := range []string{b.MetadataPath, b.ModelPath} {
		if _, err := os.Stat(p); err != nil {
			return Bundle{}, fmt.Errorf("artifact file unavailable: %w", err)
		}
	}
	return b, nil
}

func (s *DirSource) String() string {
	return "file://" + s.Dir
}
