// Package admission bounds concurrent upstream work with counting permit
// pools: one global pool plus optional per-host override pools.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/isocatalog/internal/metrics"
)

// ErrPoolClosed is returned when acquiring from a pool that has been closed.
var ErrPoolClosed = errors.New("admission pool closed")

// Stats is a snapshot of pool usage.
type Stats struct {
	Capacity int64
	InFlight int64
	Peak     int64
}

// Pool is a counting admission pool. Acquisition suspends while the pool is
// exhausted; exhaustion is backpressure, never an error.
type Pool struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted

	inFlight atomic.Int64
	peak     atomic.Int64

	closeCtx context.Context
	closeFn  context.CancelFunc
}

// NewPool creates a pool with the given capacity. The name labels metrics.
func NewPool(name string, capacity int64) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool %q: capacity must be positive, got %d", name, capacity)
	}
	closeCtx, closeFn := context.WithCancel(context.Background())
	return &Pool{
		name:     name,
		capacity: capacity,
		sem:      semaphore.NewWeighted(capacity),
		closeCtx: closeCtx,
		closeFn:  closeFn,
	}, nil
}

// Name returns the pool's metrics label.
func (p *Pool) Name() string {
	return p.name
}

// Acquire takes one permit, suspending until one is available. It fails with
// ErrPoolClosed once the pool is closed, or with the context's error.
func (p *Pool) Acquire(ctx context.Context) (*Permit, error) {
	if p.closeCtx.Err() != nil {
		return nil, ErrPoolClosed
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	start := time.Now()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if p.closeCtx.Err() != nil {
			return nil, ErrPoolClosed
		}
		return nil, fmt.Errorf("acquire %s permit: %w", p.name, err)
	}
	// Close may have raced a successful acquisition.
	if p.closeCtx.Err() != nil {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	metrics.ObservePermitWait(p.name, time.Since(start))

	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	metrics.SetPermitsInFlight(p.name, n)
	return &Permit{pool: p}, nil
}

// Close marks the pool closed. Waiting and future acquisitions fail with
// ErrPoolClosed; permits already held stay valid until released.
func (p *Pool) Close() {
	p.closeFn()
}

// Stats returns the pool's capacity and usage.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity: p.capacity,
		InFlight: p.inFlight.Load(),
		Peak:     p.peak.Load(),
	}
}

func (p *Pool) release() {
	n := p.inFlight.Add(-1)
	metrics.SetPermitsInFlight(p.name, n)
	p.sem.Release(1)
}

// Permit is one unit of admission. Release is idempotent.
type Permit struct {
	pool *Pool
	once sync.Once
}

// Release returns the permit to its pool.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.pool.release)
}
