package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/recycle-api/internal/artifact"
)

// Config holds the server's runtime settings.
type Config struct {
	Port string

	ModelSource  string
	ModelFile    string
	MetadataFile string
	CacheDir     string
	OrtLibrary   string
	FetchTimeout time.Duration
	PreloadModel bool
	MaxUpload    int64
	MaxPixels    int
	LogLevel     log.Level
	LogJSON      bool
	GinMode      string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		ModelSource:  os.Getenv("MODEL_SOURCE"),
		ModelFile:    getenv("MODEL_FILE", artifact.DefaultModelFile),
		MetadataFile: getenv("METADATA_FILE", artifact.DefaultMetadataFile),
		CacheDir:     getenv("MODEL_CACHE_DIR", artifact.DefaultCacheDir()),
		OrtLibrary:   os.Getenv("ONNXRUNTIME_LIB"),
		GinMode:      getenv("GIN_MODE", "release"),
		LogJSON:      strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	}

	var err error
	if cfg.FetchTimeout, err = durationEnv("MODEL_FETCH_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.PreloadModel, err = boolEnv("MODEL_PRELOAD", true); err != nil {
		return nil, err
	}
	if cfg.MaxUpload, err = int64Env("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}
	maxPixels, err := int64Env("MAX_IMAGE_PIXELS", 64<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxPixels = int(maxPixels)

	if cfg.LogLevel, err = log.ParseLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.ModelSource) == "" {
		return errors.New("MODEL_SOURCE is required")
	}
	if _, err := artifact.Parse(c.ModelSource, c.ArtifactOptions()); err != nil {
		return fmt.Errorf("MODEL_SOURCE: %w", err)
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number (got %q)", c.Port)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("MODEL_FETCH_TIMEOUT must be > 0 (got %s)", c.FetchTimeout)
	}
	if c.MaxUpload <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0 (got %d)", c.MaxUpload)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxPixels)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test (got %q)", c.GinMode)
	}
	return nil
}

// ArtifactOptions returns the settings artifact sources need.
func (c *Config) ArtifactOptions() artifact.Options {
	return artifact.Options{
		Files:    artifact.Files{Model: c.ModelFile, Metadata: c.MetadataFile},
		CacheDir: c.CacheDir,
		Timeout:  c.FetchTimeout,
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
