// Package worker implements the report processing loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/ingest"
	"github.com/JakeFAU/acra-collector/internal/logging"
	"github.com/JakeFAU/acra-collector/internal/metrics"
)

// Worker consumes queued jobs and runs each through the pipeline.
type Worker struct {
	id        int
	queue     ingest.Queue
	processor ingest.Processor
	clock     ingest.Clock
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	id int,
	queue ingest.Queue,
	processor ingest.Processor,
	clock ingest.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		queue:     queue,
		processor: processor,
		clock:     clock,
		logger:    logger.With(zap.Int("index", id)),
	}
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ingest.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.handle(job)
	}
}

// handle processes one job and always completes it, even if the pipeline
// panics.
func (w *Worker) handle(job *ingest.Job) {
	jobCtx := job.Context()
	if w.clock != nil {
		metrics.ObserveQueueWait(w.clock.Now().Sub(job.Enqueued()))
	}
	w.logger.Debug("dequeued job", logging.RequestField(jobCtx))

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var err error
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("pipeline panicked", logging.RequestField(jobCtx), zap.Any("panic", rec))
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
		job.Complete(err)
	}()
	err = w.processor.Process(jobCtx, job.Body())
}
