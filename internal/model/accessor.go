package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
)

// Loader opens the artifact at path.
type Loader func(path string) (Model, error)

// LoadObserver records model load attempts.
type LoadObserver interface {
	ObserveModelLoad(ok bool, elapsed time.Duration)
}

// AccessorConfig configures an Accessor.
type AccessorConfig struct {
	Path         string
	Source       Source // nil when no remote source is configured
	Load         Loader
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Observer     LoadObserver
}

// Accessor owns the process-wide model handle. The first successful Get
// loads it; every later call returns the same handle. Failed attempts are
// not cached.
type Accessor struct {
	cfg AccessorConfig
	log *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[loaded]
}

type loaded struct {
	model Model
}

func NewAccessor(cfg AccessorConfig) *Accessor {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Accessor{cfg: cfg, log: log.With("component", "model")}
}

// Get returns the model, loading it on first use. Concurrent callers
// during the load block until it finishes.
func (a *Accessor) Get(ctx context.Context) (Model, error) {
	if l := a.current.Load(); l != nil {
		return l.model, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if l := a.current.Load(); l != nil {
		return l.model, nil
	}

	start := time.Now()
	m, err := a.load(ctx)
	elapsed := time.Since(start)
	if a.cfg.Observer != nil {
		a.cfg.Observer.ObserveModelLoad(err == nil, elapsed)
	}
	if err != nil {
		a.log.Error("model unavailable", "path", a.cfg.Path, "error", err)
		return nil, err
	}

	a.current.Store(&loaded{model: m})
	a.log.Info("model loaded", "path", a.cfg.Path, "elapsed", elapsed)
	return m, nil
}

func (a *Accessor) load(ctx context.Context) (Model, error) {
	path := a.cfg.Path

	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, apperr.ModelUnavailable("The model file is missing.", fmt.Errorf("%s is a directory", path))
		}
		if info.Size() == 0 {
			return nil, apperr.ModelUnavailable("The model file is empty.", fmt.Errorf("%s has zero size", path))
		}
	case errors.Is(err, fs.ErrNotExist):
		if a.cfg.Source == nil {
			return nil, apperr.ModelUnavailable("The model file is missing and no download source is configured.",
				fmt.Errorf("no artifact at %s", path))
		}
		if err := a.fetch(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.ModelUnavailable("The model file cannot be read.", err)
	}

	m, err := a.cfg.Load(path)
	if err != nil {
		return nil, apperr.ModelUnavailable("The model file could not be loaded.", err)
	}
	return m, nil
}

func (a *Accessor) fetch(ctx context.Context) error {
	src := a.cfg.Source
	a.log.Info("model not found locally, downloading", "source", src.Name(), "path", a.cfg.Path)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	n, err := fetchArtifact(ctx, a.cfg.Path, src)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("download timed out after %s: %w", a.cfg.FetchTimeout, err)
		}
		return apperr.ModelUnavailable("The model could not be downloaded.", err)
	}

	a.log.Info("model downloaded", "source", src.Name(), "bytes", n)
	return nil
}

// Loaded reports whether the handle is ready.
func (a *Accessor) Loaded() bool {
	return a.current.Load() != nil
}

// Close releases the handle if it was loaded.
func (a *Accessor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	l := a.current.Swap(nil)
	if l == nil {
		return nil
	}
	return l.model.Close()
}
