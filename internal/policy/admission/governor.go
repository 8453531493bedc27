package admission

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/isocatalog/internal/policy/ratelimit"
)

// GlobalPoolName labels the global pool in metrics.
const GlobalPoolName = "global"

// HostLimit overrides admission for a single host.
type HostLimit struct {
	Host              string  `mapstructure:"host"`
	Permits           int64   `mapstructure:"permits"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// Config sizes the governor's pools. Pools are fixed for the governor's lifetime.
type Config struct {
	GlobalPermits int64
	Hosts         []HostLimit
}

// Governor owns the global pool and the static host to pool map.
type Governor struct {
	global  *Pool
	hosts   map[string]*Pool
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewGovernor builds the pools described by cfg.
func NewGovernor(cfg Config, logger *zap.Logger) (*Governor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	global, err := NewPool(GlobalPoolName, cfg.GlobalPermits)
	if err != nil {
		return nil, fmt.Errorf("create global pool: %w", err)
	}

	hosts := make(map[string]*Pool, len(cfg.Hosts))
	rates := make(map[string]float64)
	for _, h := range cfg.Hosts {
		host := strings.ToLower(strings.TrimSpace(h.Host))
		if host == "" {
			return nil, fmt.Errorf("create host pool: empty host")
		}
		if _, dup := hosts[host]; dup {
			return nil, fmt.Errorf("create host pool: duplicate host %q", host)
		}
		if h.Permits > 0 {
			pool, err := NewPool(host, h.Permits)
			if err != nil {
				return nil, fmt.Errorf("create host pool: %w", err)
			}
			hosts[host] = pool
		}
		if h.RequestsPerSecond > 0 {
			rates[host] = h.RequestsPerSecond
		}
	}

	return &Governor{
		global:  global,
		hosts:   hosts,
		limiter: ratelimit.New(ratelimit.Config{Hosts: rates}),
		logger:  logger.Named("governor"),
	}, nil
}

// Ticket holds the permits granted for one upstream call.
type Ticket struct {
	permits []*Permit
	once    *sync.Once
}

// Release returns every held permit exactly once. Calling it again is a no-op.
func (t Ticket) Release() {
	if t.once == nil {
		return
	}
	t.once.Do(func() {
		// Reverse acquisition order: global first, then host.
		for i := len(t.permits) - 1; i >= 0; i-- {
			t.permits[i].Release()
		}
	})
}

// Acquire admits one call to host. The host pool, if registered, is taken
// first, then the host's pacing token, then the global pool. Paced callers
// never hold a global permit while they wait. A failure releases anything
// already held.
func (g *Governor) Acquire(ctx context.Context, host string) (Ticket, error) {
	host = strings.ToLower(host)
	var permits []*Permit
	releaseHeld := func() {
		for _, held := range permits {
			held.Release()
		}
	}

	if pool, ok := g.hosts[host]; ok {
		p, err := pool.Acquire(ctx)
		if err != nil {
			return Ticket{}, fmt.Errorf("admit %s: %w", host, err)
		}
		permits = append(permits, p)
	}

	if err := g.Pace(ctx, host); err != nil {
		releaseHeld()
		return Ticket{}, err
	}

	p, err := g.global.Acquire(ctx)
	if err != nil {
		releaseHeld()
		return Ticket{}, fmt.Errorf("admit %s: %w", host, err)
	}
	permits = append(permits, p)

	return Ticket{permits: permits, once: &sync.Once{}}, nil
}

// Pace waits for host's next pacing token. It returns immediately for hosts
// without a configured rate. Acquire paces the first attempt; callers pace
// every further attempt made under the same ticket.
func (g *Governor) Pace(ctx context.Context, host string) error {
	host = strings.ToLower(host)
	if !g.limiter.Paced(host) {
		return nil
	}
	if err := g.limiter.Wait(ctx, host); err != nil {
		return fmt.Errorf("admit %s: %w", host, err)
	}
	return nil
}

// HostPool returns the override pool registered for host, if any.
func (g *Governor) HostPool(host string) (*Pool, bool) {
	p, ok := g.hosts[strings.ToLower(host)]
	return p, ok
}

// Global returns the global pool.
func (g *Governor) Global() *Pool {
	return g.global
}

// Close closes every pool. In-flight tickets remain releasable.
func (g *Governor) Close() {
	g.global.Close()
	for _, p := range g.hosts {
		p.Close()
	}
	g.logger.Debug("Admission pools closed")
}
