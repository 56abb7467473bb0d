package session

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

const laneBuffer = 32

// Detacher runs side effects the caller never waits on. Each effect gets its
// own timeout and keeps the caller's logger but not its cancellation; its
// outcome only reaches the log and metrics.
type Detacher struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDetacher(timeout time.Duration) *Detacher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Detacher{timeout: timeout}
}

// Go schedules fn in a new goroutine.
func (d *Detacher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(base, name, fn)
	}()
}

// Lane returns a serial queue: effects enqueued on it run one at a time in
// enqueue order. Close it when the owner is done.
func (d *Detacher) Lane(ctx context.Context) *Lane {
	l := &Lane{d: d, base: context.WithoutCancel(ctx), tasks: make(chan laneTask, laneBuffer)}
	d.wg.Add(1)
	go l.loop()
	return l
}

// Wait blocks until every scheduled effect has finished or ctx is done.
func (d *Detacher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Detacher) run(base context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(base, d.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		metrics.SideEffects.WithLabelValues(name, metrics.ResultError).Inc()
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("effect", name).Msg("side effect failed")
		return
	}
	metrics.SideEffects.WithLabelValues(name, metrics.ResultOK).Inc()
}

type laneTask struct {
	name string
	fn   func(ctx context.Context) error
}

// Lane is a per-session serial side-effect queue.
type Lane struct {
	d     *Detacher
	base  context.Context
	tasks chan laneTask

	mu     sync.Mutex
	closed bool
}

// Go enqueues fn without blocking. A full or closed lane drops it.
func (l *Lane) Go(name string, fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		metrics.SideEffects.WithLabelValues(name, metrics.ResultDropped).Inc()
		return
	}
	select {
	case l.tasks <- laneTask{name: name, fn: fn}:
	default:
		metrics.SideEffects.WithLabelValues(name, metrics.ResultDropped).Inc()
		lg := log.Ctx(l.base)
		lg.Warn().Str("effect", name).Msg("side effect lane full, effect dropped")
	}
}

// Must enqueues fn, waiting for room when the lane is full. Only a closed lane
// drops it. Queued effects each run under the detacher's timeout, so the wait
// is bounded.
func (l *Lane) Must(name string, fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		metrics.SideEffects.WithLabelValues(name, metrics.ResultDropped).Inc()
		return
	}
	l.tasks <- laneTask{name: name, fn: fn}
}

// Close stops accepting effects. Queued ones still run.
func (l *Lane) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.tasks)
	}
}

func (l *Lane) loop() {
	defer l.d.wg.Done()
	for t := range l.tasks {
		l.d.run(l.base, t.name, t.fn)
	}
}
