package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readcomic/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readcomic/internal/shared/id"
)

const (
	// DefaultMaxAge is how long a cached loader body stays fresh when no
	// page has pointed at a loader URL yet.
	DefaultMaxAge = 24 * time.Hour
	// HintedMaxAge applies once the loader URL was observed on a page.
	HintedMaxAge = 7 * 24 * time.Hour

	// retryDelay spaces out rebuild attempts after a failed build while an
	// older program is still being served.
	retryDelay = time.Minute
)

// ErrEmptyBody is returned when the loader script fetched is empty
var ErrEmptyBody = errors.New("bootstrap script is empty")

// Fetcher retrieves the loader script body, possibly from a cache no older
// than maxAge.
type Fetcher interface {
	FetchScript(ctx context.Context, url string, maxAge time.Duration) ([]byte, error)
}

// Program is an immutable compiled bootstrap
type Program struct {
	ID        id.BuildID
	SourceURL string
	BuiltAt   time.Time
	Size      int

	compiled *goja.Program
}

// Compiled returns the goja program to load into a sandbox runtime
func (p *Program) Compiled() *goja.Program {
	return p.compiled
}

// Compile assembles the neutralizer, loader body and atob polyfill into a
// program. sourceURL only names the program in stack traces.
func Compile(sourceURL string, body []byte) (*Program, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	compiled, err := goja.Compile(sourceURL, assemble(body), false)
	if err != nil {
		return nil, fmt.Errorf("compile bootstrap: %w", err)
	}

	return &Program{
		ID:        id.NewBuildID(),
		SourceURL: sourceURL,
		BuiltAt:   time.Now(),
		Size:      len(body),
		compiled:  compiled,
	}, nil
}

// Cache holds the process-wide bootstrap program and the loader URL hint.
// Readers never block; builds are serialized.
type Cache struct {
	fetcher    Fetcher
	defaultURL string
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	hint    atomic.Pointer[string]
	current atomic.Pointer[Program]
	builds  atomic.Int64

	mu           sync.Mutex
	failedSource string
	retryAt      time.Time
	now          func() time.Time
}

// NewCache creates a bootstrap cache that falls back to defaultURL until a
// loader URL is observed.
func NewCache(fetcher Fetcher, defaultURL string, logger *logging.Logger, metrics *monitoring.Metrics) *Cache {
	return &Cache{
		fetcher:    fetcher,
		defaultURL: defaultURL,
		logger:     logging.OrNop(logger).Named("bootstrap"),
		metrics:    metrics,
		now:        time.Now,
	}
}

// ObserveSourceURL records the loader URL seen on a page. A different URL
// than the current program's source triggers a rebuild on the next Get.
func (c *Cache) ObserveSourceURL(url string) {
	if url == "" {
		return
	}
	if prev := c.hint.Load(); prev != nil && *prev == url {
		return
	}
	c.hint.Store(&url)
	c.logger.Debug("Observed bootstrap source", zap.String("url", url))
}

// SourceURL returns the URL the next build would fetch
func (c *Cache) SourceURL() string {
	if hint := c.hint.Load(); hint != nil {
		return *hint
	}
	return c.defaultURL
}

// Builds returns the number of successful builds
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

// Current returns the published program without building
func (c *Cache) Current() *Program {
	return c.current.Load()
}

// Get returns the current program, building it on first use or when the
// observed loader URL changed. A program already handed out stays valid
// after a rebuild.
func (c *Cache) Get(ctx context.Context) (*Program, error) {
	if p := c.current.Load(); p != nil && c.fresh(p) {
		c.metrics.RecordBootstrapHit()
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current.Load()
	if prev != nil && c.fresh(prev) {
		c.metrics.RecordBootstrapHit()
		return prev, nil
	}

	url, maxAge, kind := c.target()
	if prev != nil && url == c.failedSource && c.now().Before(c.retryAt) {
		return prev, nil
	}

	p, err := c.build(ctx, url, maxAge)
	if err != nil {
		c.metrics.RecordBootstrapBuild("error")
		if prev == nil {
			return nil, err
		}
		c.failedSource = url
		c.retryAt = c.now().Add(retryDelay)
		c.logger.Warn("Bootstrap rebuild failed, serving previous program",
			zap.String("url", url),
			zap.String("previous", prev.SourceURL),
			zap.Error(err))
		return prev, nil
	}

	c.failedSource = ""
	c.current.Store(p)
	c.builds.Add(1)
	c.metrics.RecordBootstrapBuild("ok")
	c.metrics.RecordBootstrapSource(kind)
	c.logger.Info("Bootstrap built",
		zap.String("id", p.ID.String()),
		zap.String("url", p.SourceURL),
		zap.Int("bytes", p.Size))
	return p, nil
}

// fresh reports whether p was built from the URL currently hinted
func (c *Cache) fresh(p *Program) bool {
	hint := c.hint.Load()
	return hint == nil || *hint == p.SourceURL
}

func (c *Cache) target() (url string, maxAge time.Duration, kind string) {
	if hint := c.hint.Load(); hint != nil {
		return *hint, HintedMaxAge, "observed"
	}
	return c.defaultURL, DefaultMaxAge, "default"
}

func (c *Cache) build(ctx context.Context, url string, maxAge time.Duration) (*Program, error) {
	body, err := c.fetcher.FetchScript(ctx, url, maxAge)
	if err != nil {
		return nil, fmt.Errorf("fetch bootstrap %s: %w", url, err)
	}
	return Compile(url, body)
}
