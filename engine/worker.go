package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ahalstead/caseng/logkeys"

	"github.com/micromdm/nanolib/log"
)

// DefaultWorkerDuration is the default worker polling interval.
const DefaultWorkerDuration = 5 * time.Second

// Worker runs the engine's off-hot-path maintenance on an interval:
// flushing the event journal to the audit sink, persisting dirty case
// snapshots, retrying parked allocations, and refreshing the adaptive
// allocation policy.
type Worker struct {
	engine *Engine
	logger log.Logger

	// duration is the interval at which the worker wakes up.
	duration time.Duration
}

type WorkerOption func(w *Worker)

func WithWorkerLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithWorkerDuration configures the polling interval for the worker.
func WithWorkerDuration(d time.Duration) WorkerOption {
	return func(w *Worker) {
		w.duration = d
	}
}

func NewWorker(engine *Engine, opts ...WorkerOption) *Worker {
	w := &Worker{
		engine:   engine,
		logger:   log.NopLogger,
		duration: DefaultWorkerDuration,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce runs one pass of the worker's maintenance and logs errors.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.engine.RetryAllocations(ctx)
	w.engine.resources.RefreshPolicy(ctx)
	if err := w.engine.FlushEvents(ctx); err != nil {
		return logAndError(err, w.logger, "flushing events")
	}
	if err := w.engine.PersistDirty(ctx); err != nil {
		return logAndError(err, w.logger, "persisting snapshots")
	}
	return nil
}

// Run starts and runs the worker forever on an interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug(logkeys.Message, "starting worker", "duration", w.duration)

	ticker := time.NewTicker(w.duration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func logAndError(err error, logger log.Logger, msg string) error {
	logger.Info(
		logkeys.Message, msg,
		logkeys.Error, err,
	)
	return fmt.Errorf("%s: %w", msg, err)
}
