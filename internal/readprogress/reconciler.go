package readprogress

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// Reconciler periodically merges dirty rooms into the ledger.
type Reconciler struct {
	svc      *Service
	clock    clock.Clock
	interval time.Duration
	batch    int
	timeout  time.Duration

	once   sync.Once
	stopCh chan struct{}
	done   chan struct{}
}

func NewReconciler(svc *Service, c clock.Clock, interval time.Duration, batch int) *Reconciler {
	if c == nil {
		c = clock.New()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{
		svc:      svc,
		clock:    c,
		interval: interval,
		batch:    batch,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the loop in a new goroutine. A non-positive interval disables it.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		close(r.done)
		return
	}
	ticker := r.clock.Ticker(r.interval)
	go r.run(ctx, ticker)
}

// Stop ends the loop and waits for the current pass.
func (r *Reconciler) Stop() {
	r.once.Do(func() { close(r.stopCh) })
	<-r.done
}

// Done is closed once the loop has exited.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

func (r *Reconciler) run(ctx context.Context, ticker *clock.Ticker) {
	defer close(r.done)
	defer ticker.Stop()

	logger := log.Ctx(ctx)

	logger.Info().Dur("interval", r.interval).Int("batch", r.batch).Msg("read progress reconciler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := log.Ctx(ctx)
	n, err := r.svc.ReconcileDirty(ctx, r.batch)
	if err != nil {
		logger.Error().Err(err).Int("reconciled", n).Msg("read progress reconcile pass failed")
		return
	}
	if n > 0 {
		logger.Debug().Int("reconciled", n).Msg("read progress reconciled")
	}
}
