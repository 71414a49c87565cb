// Package nashealth is the process-wide NAS traffic gate.
//
// Two writers with distinct privileges keep the cell from oscillating:
// the periodic probe may set any state, while workers reporting I/O
// failures may only degrade to unhealthy. Recovery is the probe's
// exclusive job.
package nashealth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/storage"
)

// State is the three-valued gate state.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// ParseState normalises a probe status string. Unknown strings map to
// unhealthy.
func ParseState(s string) State {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case StateHealthy:
		return StateHealthy
	case StateDegraded:
		return StateDegraded
	default:
		return StateUnhealthy
	}
}

// ErrNASUnavailable is returned by the ingress guard while the gate is
// unhealthy.
var ErrNASUnavailable = fault.New(fault.KindUnavailable, "NAS_UNAVAILABLE", "NAS storage is unavailable")

// Snapshot is a point-in-time view of the cell.
type Snapshot struct {
	State         State     `json:"state"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// Cache is the shared health cell.
type Cache struct {
	mu            sync.RWMutex
	state         State
	lastCheckedAt time.Time
	lastError     string
}

// New creates a cell in the optimistic initial state (healthy), so
// traffic is accepted at cold start before the first probe completes.
func New() *Cache {
	return &Cache{state: StateHealthy}
}

// Get returns the current snapshot.
func (c *Cache) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{State: c.state, LastCheckedAt: c.lastCheckedAt, LastError: c.lastError}
}

// Guard rejects ingress while the gate is unhealthy. Degraded passes.
func (c *Cache) Guard() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateUnhealthy {
		return ErrNASUnavailable
	}
	return nil
}

// SetFromProbe is the scheduler's write path: any transition is allowed.
func (c *Cache) SetFromProbe(state State, probeErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = state
	c.lastCheckedAt = time.Now()
	c.lastError = ""
	if probeErr != nil {
		c.lastError = probeErr.Error()
	}
	if prev != state {
		logger.Info("NAS health state changed",
			"from", string(prev),
			"to", string(state),
			logger.KeyError, c.lastError,
		)
	}
}

// ReportFailure is the worker write path: one-way to unhealthy. Workers
// may never mark the NAS recovered; that is the probe's job.
func (c *Cache) ReportFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheckedAt = time.Now()
	if err != nil {
		c.lastError = err.Error()
	}
	if c.state != StateUnhealthy {
		logger.Warn("NAS marked unhealthy by worker",
			"from", string(c.state),
			logger.KeyError, c.lastError,
		)
		c.state = StateUnhealthy
	}
}

// Prober runs the periodic health probe against the NAS store.
type Prober struct {
	cache    *Cache
	nas      storage.Store
	interval time.Duration
}

// NewProber creates a prober listing the NAS root every interval.
func NewProber(cache *Cache, nas storage.Store, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{cache: cache, nas: nas, interval: interval}
}

// Run blocks until ctx is cancelled, probing at the configured interval.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// probe lists the NAS root; connectivity failures flip the gate to
// unhealthy, slow-but-working listings could be mapped to degraded by a
// richer probe.
func (p *Prober) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.nas.List(probeCtx, "/")
	switch {
	case err == nil:
		p.cache.SetFromProbe(StateHealthy, nil)
	case storage.CodeOf(err) == storage.CodeConn:
		p.cache.SetFromProbe(StateUnhealthy, err)
	default:
		// Reachable but erroring: degraded still accepts traffic.
		p.cache.SetFromProbe(StateDegraded, err)
	}
}
