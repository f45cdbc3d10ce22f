package model

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Loader builds a ready-to-use Model.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Model, error)

func (f LoaderFunc) Load(ctx context.Context) (Model, error) {
	return f(ctx)
}

type loadedModel struct {
	model Model
}

// Cache loads a Model on first use and hands the same instance to every
// later caller. Concurrent callers that arrive before the first load
// finishes wait on that one load. A failed load is not remembered, so the
// next Get makes a fresh attempt. After Close every Get fails.
type Cache struct {
	loader  Loader
	timeout time.Duration

	group  singleflight.Group
	loaded atomic.Pointer[loadedModel]
	loads  atomic.Int64

	// mu is held for the whole of a load and by Close.
	mu     sync.Mutex
	closed bool
}

// NewCache returns a cache around loader. A positive timeout bounds each
// load attempt.
func NewCache(loader Loader, timeout time.Duration) *Cache {
	return &Cache{loader: loader, timeout: timeout}
}

// Get returns the cached Model, loading it if needed. Load failures are
// reported as KindModelLoad.
func (c *Cache) Get() (Model, error) {
	if l := c.loaded.Load(); l != nil {
		return l.model, nil
	}

	v, err, shared := c.group.Do("model", func() (any, error) {
		if l := c.loaded.Load(); l != nil {
			return l.model, nil
		}
		return c.load()
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("[ModelCache] Joined in-flight model load")
	}
	return v.(Model), nil
}

func (c *Cache) load() (Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &PipelineError{Kind: KindModelLoad, Err: errors.New("model cache is closed")}
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	attempt := c.loads.Add(1)
	start := time.Now()
	log.WithField("attempt", attempt).Info("[ModelCache] Loading model")

	m, err := c.loader.Load(ctx)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	if err != nil {
		log.WithError(err).WithField("attempt", attempt).Error("[ModelCache] Couldn't load model")
		if KindOf(err) == KindModelLoad {
			return nil, err
		}
		return nil, &PipelineError{Kind: KindModelLoad, Err: err}
	}

	c.loaded.Store(&loadedModel{model: m})
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("[ModelCache] Model ready")
	return m, nil
}

// Loaded reports whether a model is cached.
func (c *Cache) Loaded() bool {
	return c.loaded.Load() != nil
}

// Loads returns how many times the loader has been invoked.
func (c *Cache) Loads() int64 {
	return c.loads.Load()
}

// Close waits for a load in progress, then releases the cached model if it
// holds native resources.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	l := c.loaded.Swap(nil)
	if l == nil {
		return nil
	}
	if closer, ok := l.model.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
