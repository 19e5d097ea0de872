// Package ratelimit provides per-service sliding-window request governance
// and a stricter serialized path with circuit breaking for the raw ledger
// lookup endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// ServiceLimit configures one external service's sliding window.
type ServiceLimit struct {
	Window      time.Duration
	MaxRequests int
}

// Governor tracks recent request timestamps per external service and answers
// whether another request may proceed. Record does not itself enforce the
// limit; callers check CanProceed (or use WaitIfNeeded) first.
type Governor struct {
	mu     sync.Mutex
	limits map[string]ServiceLimit
	// recent holds timestamps within each service's window, oldest first.
	recent map[string][]time.Time
	now    func() time.Time
}

// NewGovernor creates a governor with the given per-service limits.
func NewGovernor(limits map[string]ServiceLimit) *Governor {
	g := &Governor{
		limits: make(map[string]ServiceLimit, len(limits)),
		recent: make(map[string][]time.Time),
		now:    time.Now,
	}
	for name, l := range limits {
		g.limits[name] = l
	}
	return g
}

// CanProceed prunes timestamps older than the service's window and reports
// whether another request fits under the limit. Unknown services are
// unlimited.
func (g *Governor) CanProceed(service string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	limit, ok := g.limits[service]
	if !ok {
		return true
	}

	g.pruneLocked(service, limit.Window)
	return len(g.recent[service]) < limit.MaxRequests
}

// Record appends the current timestamp for the service.
func (g *Governor) Record(service string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.limits[service]; !ok {
		return
	}
	g.recent[service] = append(g.recent[service], g.now())
}

// WaitIfNeeded blocks until the service is allowed to proceed, the maxWait
// budget elapses, or ctx is cancelled. Returns true if the caller may
// proceed.
func (g *Governor) WaitIfNeeded(ctx context.Context, service string, maxWait time.Duration) bool {
	if g.CanProceed(service) {
		return true
	}

	deadline := g.now().Add(maxWait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if g.CanProceed(service) {
				return true
			}
			if g.now().After(deadline) {
				return false
			}
		}
	}
}

// pruneLocked drops timestamps older than window. Caller holds g.mu.
func (g *Governor) pruneLocked(service string, window time.Duration) {
	cutoff := g.now().Add(-window)
	ts := g.recent[service]
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.recent[service] = append(ts[:0], ts[i:]...)
	}
}
