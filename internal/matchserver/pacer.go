package matchserver

import (
	"context"
	"time"
)

// Pacer keeps the match loop at a fixed tick rate and tracks a single rolling
// timeout. Only one timeout is active at a time; StartTimeout replaces it.
type Pacer struct {
	period   time.Duration
	next     time.Time
	deadline time.Time
	armed    bool
}

// NewPacer creates a pacer running at tickRate ticks per second.
func NewPacer(tickRate int) *Pacer {
	period := time.Second / time.Duration(tickRate)
	return &Pacer{
		period: period,
		next:   time.Now().Add(period),
	}
}

// StartTimeout arms a fresh timeout expiring after d.
func (p *Pacer) StartTimeout(d time.Duration) {
	p.deadline = time.Now().Add(d)
	p.armed = true
}

// Tick sleeps until the next tick boundary and reports whether the active
// timeout has expired. Cancellation of ctx also counts as expiry so callers
// unwind through their normal timeout path.
func (p *Pacer) Tick(ctx context.Context) bool {
	if wait := time.Until(p.next); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return true
		}
	}
	p.next = time.Now().Add(p.period)
	return p.armed && time.Now().After(p.deadline)
}

// Period returns the tick period.
func (p *Pacer) Period() time.Duration {
	return p.period
}
