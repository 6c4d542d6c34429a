// Package gate bounds how many records are in active processing at once.
// The limit is runtime-adaptive: a Tuner watches the completed-attempt
// window and widens or narrows the gate based on observed error rate and
// latency.
package gate

import (
	"context"
	"sync"
)

// Gate admits at most Limit() holders at any instant. The limit can be
// resized while holders are inside; shrinking never evicts an in-flight
// holder, it only delays new admissions.
type Gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inflight int
}

// New creates a gate with the given initial limit (floor 1).
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	g := &Gate{limit: limit}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire blocks until a slot is free or the context is done. It returns
// false when the context was cancelled before admission.
func (g *Gate) Acquire(ctx context.Context) bool {
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				// The lock orders this broadcast after any waiter's
				// ctx.Err check, so the wakeup cannot slip into the gap
				// before cond.Wait.
				g.mu.Lock()
				g.cond.Broadcast()
				g.mu.Unlock()
			case <-stop:
			}
		}()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	for g.inflight >= g.limit {
		if ctx.Err() != nil {
			return false
		}
		g.cond.Wait()
	}
	g.inflight++
	return true
}

// Release frees one slot.
func (g *Gate) Release() {
	g.mu.Lock()
	if g.inflight > 0 {
		g.inflight--
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Inflight returns the number of current holders.
func (g *Gate) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

// Limit returns the current admission limit.
func (g *Gate) Limit() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limit
}

// SetLimit resizes the gate (floor 1) and wakes waiters.
func (g *Gate) SetLimit(n int) {
	g.mu.Lock()
	if n < 1 {
		n = 1
	}
	g.limit = n
	g.cond.Broadcast()
	g.mu.Unlock()
}
