package ticker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"go.uber.org/zap"
)

// Task runs one bounded unit of work per tick. Runs never overlap: a tick that
// arrives while the previous run is still going is skipped, and manual
// triggers go through the same guard.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	running atomic.Bool
}

func New(name string, interval time.Duration, run func(ctx context.Context) error) *Task {
	return &Task{Name: name, Interval: interval, Run: run}
}

// Start blocks until ctx is done.
func (t *Task) Start(ctx context.Context) {
	log := observability.GetLogger(ctx).With(zap.String("task", t.Name))
	log.Info("periodic task started", zap.Duration("interval", t.Interval))

	tk := time.NewTicker(t.Interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("periodic task stopped")
			return
		case <-tk.C:
			t.RunOnce(ctx)
		}
	}
}

// RunOnce executes the task now unless a run is already in flight. It reports
// whether the task ran.
func (t *Task) RunOnce(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		observability.SweepSkippedTotal.WithLabelValues(t.Name).Inc()
		return false
	}
	defer t.running.Store(false)

	start := time.Now()
	err := t.Run(ctx)
	observability.SweepDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.SweepRunsTotal.WithLabelValues(t.Name, "error").Inc()
		observability.GetLogger(ctx).Error("periodic task failed", zap.String("task", t.Name), zap.Error(err))
		return true
	}
	observability.SweepRunsTotal.WithLabelValues(t.Name, "ok").Inc()
	return true
}
