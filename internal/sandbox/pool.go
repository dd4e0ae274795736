package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

// Handle is an exclusive checkout of a sandbox instance. Release must be
// invoked on every exit path; it is safe to call more than once.
type Handle struct {
	Sandbox
	once    sync.Once
	release func()
}

// Release returns the slot to the pool.
func (h *Handle) Release() {
	h.once.Do(h.release)
}

// Pool is a bounded pool of emulated-network sandboxes. Exactly one session
// may hold a given instance at a time; instances are never shared, which is
// what makes the clean-reset guarantee sufficient for attribution.
type Pool struct {
	resolver       *topology.Resolver
	sem            *semaphore.Weighted
	acquireTimeout time.Duration
}

// NewPool creates a pool with the given number of slots. acquireTimeout
// bounds how long Acquire waits for a free slot.
func NewPool(resolver *topology.Resolver, size int, acquireTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		resolver:       resolver,
		sem:            semaphore.NewWeighted(int64(size)),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire checks out a clean sandbox matching the topology ref. It returns
// ErrCapacityExceeded when no slot frees up within the bounded wait.
func (p *Pool) Acquire(ctx context.Context, topologyRef string) (*Handle, error) {
	topo, err := p.resolver.Resolve(topologyRef)
	if err != nil {
		return nil, err
	}

	acquireCtx := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, model.ErrCapacityExceeded
		}
		return nil, err
	}

	return &Handle{
		Sandbox: NewNetwork(topo),
		release: func() { p.sem.Release(1) },
	}, nil
}
