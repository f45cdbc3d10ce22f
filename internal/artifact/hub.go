package artifact

import (
	"context"
	"fmt"

	"github.com/gomlx/go-huggingface/hub"
	log "github.com/sirupsen/logrus"
)

// HubSource downloads the artifact from a Hugging Face Hub repository.
// The hub client keeps its own cache under CacheDir.
type HubSource struct {
	Repo     string
	Files    Files
	CacheDir string

	downloadFile func(name string) (string, error)
}

func NewHubSource(repo string, opts Options) *HubSource {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	s := &HubSource{Repo: repo, Files: opts.Files.withDefaults(), CacheDir: cacheDir}
	s.downloadFile = func(name string) (string, error) {
		return hub.New(s.Repo).WithCacheDir(s.CacheDir).DownloadFile(name)
	}
	return s
}

func (s *HubSource) String() string {
	return "hf://" + s.Repo
}

func (s *HubSource) Fetch(ctx context.Context) (Bundle, error) {
	metadataPath, err := s.download(ctx, s.Files.Metadata)
	if err != nil {
		return Bundle{}, err
	}
	modelPath, err := s.download(ctx, s.Files.Model)
	if err != nil {
		return Bundle{}, err
	}

	log.WithFields(log.Fields{"repo": s.Repo, "model": modelPath}).Info("[Artifact] Hub artifact ready")
	return Bundle{ModelPath: modelPath, MetadataPath: metadataPath}, nil
}

// download fetches one file. The hub client takes no context, so a stalled
// transfer is abandoned when ctx ends and finishes in the background.
func (s *HubSource) download(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		path string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		path, err := s.downloadFile(name)
		done <- result{path, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("failed to download %s: %w", name, r.err)
		}
		return r.path, nil
	case <-ctx.Done():
		return "", fmt.Errorf("failed to download %s: %w", name, ctx.Err())
	}
}
