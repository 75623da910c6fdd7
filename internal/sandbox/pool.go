package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
)

var (
	ErrPoolClosed = errors.New("sandbox pool is closed")
	ErrTimeout    = errors.New("sandbox acquisition timeout")
)

// Pool bounds the number of live runtimes. A runtime is handed to one caller
// at a time and is reset before it is handed out again. A runtime that can be
// neither reset nor replaced is counted as missing and recreated by a later
// Acquire.
type Pool struct {
	config    Config
	create    func() (*Runtime, error)
	reset     func(*Runtime) error
	sandboxes chan *Runtime
	done      chan struct{}
	size      int
	missing   atomic.Int32
	logger    *logging.Logger
	mu        sync.RWMutex
	closed    bool
}

// NewPool creates a sandbox pool
func NewPool(config Config, size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}

	pool := &Pool{
		config:    config,
		create:    func() (*Runtime, error) { return New(config) },
		reset:     (*Runtime).Reset,
		sandboxes: make(chan *Runtime, size),
		done:      make(chan struct{}),
		size:      size,
		logger:    logging.OrNop(config.Logger).Named("sandbox"),
	}

	for i := 0; i < size; i++ {
		sandbox, err := pool.create()
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.sandboxes <- sandbox
	}

	return pool, nil
}

// Acquire gets a runtime from the pool, waiting up to Config.AcquireTimeout
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	p.refill()
	p.mu.RUnlock()

	var expired <-chan time.Time
	if p.config.AcquireTimeout > 0 {
		timer := time.NewTimer(p.config.AcquireTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case sandbox := <-p.sandboxes:
		return sandbox, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrTimeout
	}
}

// Release resets the runtime and returns it to the pool
func (p *Pool) Release(sandbox *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return sandbox.Close()
	}

	if err := p.reset(sandbox); err != nil {
		sandbox.Close()
		p.replace()
		return err
	}

	p.put(sandbox)
	return nil
}

// replace creates a runtime in place of a discarded one. Callers hold p.mu.
func (p *Pool) replace() {
	fresh, err := p.create()
	if err != nil {
		missing := p.missing.Add(1)
		p.logger.Warn("Sandbox replacement failed, retrying on next acquire",
			zap.Int32("missing", missing),
			zap.Error(err))
		return
	}
	p.put(fresh)
}

// refill recreates runtimes lost by replace. Callers hold p.mu.
func (p *Pool) refill() {
	for {
		n := p.missing.Load()
		if n <= 0 {
			return
		}
		if !p.missing.CompareAndSwap(n, n-1) {
			continue
		}
		p.replace()
		if p.missing.Load() >= n {
			return
		}
	}
}

// put returns a runtime without blocking. Callers hold p.mu.
func (p *Pool) put(sandbox *Runtime) {
	select {
	case p.sandboxes <- sandbox:
	default:
		sandbox.Close()
	}
}

// Run acquires a runtime, calls fn with it and releases it afterwards
func (p *Pool) Run(ctx context.Context, fn func(*Runtime) error) error {
	sandbox, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(sandbox)

	return fn(sandbox)
}

// Close closes idle runtimes and wakes waiting callers. Runtimes in use are
// closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.done)

	for {
		select {
		case sandbox := <-p.sandboxes:
			sandbox.Close()
		default:
			return nil
		}
	}
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	available := len(p.sandboxes)
	missing := int(p.missing.Load())
	return map[string]interface{}{
		"size":      p.size,
		"available": available,
		"in_use":    p.size - available - missing,
		"missing":   missing,
		"closed":    p.closed,
	}
}
