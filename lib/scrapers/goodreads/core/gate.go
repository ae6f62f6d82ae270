package core

import (
	"context"
	"sync"
	"time"
)

// Gate hands out request slots at least `delay` apart, every goroutine
// sharing a gate is rate limited together.
type Gate struct {
	mutex sync.Mutex
	delay time.Duration
	next  time.Time
}

func NewGate(delay time.Duration) *Gate {
	return &Gate{delay: delay}
}

// Wait reserves the next free slot and blocks until it arrives. a
// reservation is not returned when ctx is cancelled, the slot is simply
// left unused.
func (g *Gate) Wait(ctx context.Context) error {
	g.mutex.Lock()
	now := time.Now()
	slot := g.next
	if slot.Before(now) {
		slot = now
	}
	g.next = slot.Add(g.delay)
	g.mutex.Unlock()

	return sleepContext(ctx, time.Until(slot))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
