package ingest

import (
	"context"
	"io"
	"time"
)

// Job is one queued request: its body plus a single-use reply channel.
type Job struct {
	ctx      context.Context
	body     io.Reader
	enqueued time.Time
	done     chan error
}

// NewJob wraps body for processing under ctx.
func NewJob(ctx context.Context, body io.Reader, enqueued time.Time) *Job {
	return &Job{
		ctx:      ctx,
		body:     body,
		enqueued: enqueued,
		done:     make(chan error, 1),
	}
}

// Context returns the context the pipeline should run under.
func (j *Job) Context() context.Context {
	return j.ctx
}

// Body returns the raw request body.
func (j *Job) Body() io.Reader {
	return j.body
}

// Enqueued reports when the job was handed to the queue.
func (j *Job) Enqueued() time.Time {
	return j.enqueued
}

// Complete publishes the job result. Only the first call has an effect.
func (j *Job) Complete(err error) {
	select {
	case j.done <- err:
	default:
	}
}

// Done yields the job result once Complete has been called.
func (j *Job) Done() <-chan error {
	return j.done
}
