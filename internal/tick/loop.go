// Package tick drives the periodic broadcast loop. Unlike a simulation the
// relay has no physics to integrate, so the loop fires the callback once per
// interval with no catch-up accumulation: a missed tick's data is superseded
// by the next one anyway.
package tick

import (
	"context"
	"sync"
	"time"
)

// Func is invoked once per tick.
type Func func()

// Loop runs a callback at a fixed cadence. It is restartable: the relay
// starts it when a second player arrives and stops it when the population
// drops below two.
type Loop struct {
	interval time.Duration
	fn       Func

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop configures a loop with the given cadence.
func NewLoop(interval time.Duration, fn Func) *Loop {
	if interval <= 0 {
		interval = 15 * time.Millisecond
	}
	if fn == nil {
		fn = func() {}
	}
	return &Loop{interval: interval, fn: fn}
}

// Start launches the loop goroutine. Starting a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.fn()
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit. Stopping a
// stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Interval exposes the configured cadence.
func (l *Loop) Interval() time.Duration { return l.interval }
