package desk

import (
	"context"
	"sync"
	"time"
)

// reloader schedules background reloads for one view. With a zero window
// every trigger starts its own reload; otherwise triggers inside the window
// collapse into a single reload when it elapses.
type reloader struct {
	ctx    context.Context
	window time.Duration
	run    func(context.Context)

	wg     sync.WaitGroup
	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func newReloader(ctx context.Context, window time.Duration, run func(context.Context)) *reloader {
	return &reloader{ctx: ctx, window: window, run: run}
}

func (r *reloader) trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.window <= 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run(r.ctx)
		}()
		return
	}
	if r.timer != nil {
		return
	}
	r.wg.Add(1)
	r.timer = time.AfterFunc(r.window, func() {
		defer r.wg.Done()
		r.mu.Lock()
		r.timer = nil
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			r.run(r.ctx)
		}
	})
}

// stop drops any pending reload and waits for running ones to return.
func (r *reloader) stop() {
	r.mu.Lock()
	r.closed = true
	if r.timer != nil && r.timer.Stop() {
		r.timer = nil
		r.wg.Done()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// wait blocks until no reload is pending or running.
func (r *reloader) wait() {
	r.wg.Wait()
}
