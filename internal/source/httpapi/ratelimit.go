package httpapi

import (
	"context"
	"sync"
	"time"
)

// gate enforces a minimum interval between outgoing requests. Concurrent
// callers wait their turn or return early when the context is canceled.
type gate struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (g *gate) wait(ctx context.Context) error {
	if g == nil || g.interval <= 0 {
		return nil
	}
	g.mu.Lock()
	wait := time.Until(g.last.Add(g.interval))
	g.mu.Unlock()
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	g.mu.Lock()
	g.last = time.Now()
	g.mu.Unlock()
	return nil
}
