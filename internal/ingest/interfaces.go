package ingest

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/acra-collector/internal/notify"
)

// Persister durably appends one raw payload.
type Persister interface {
	Append(ctx context.Context, payload []byte) error
}

// Sender delivers a composed notification.
type Sender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Processor runs the ingestion pipeline over one request body.
type Processor interface {
	Process(ctx context.Context, body io.Reader) error
}

// Queue buffers jobs between the HTTP layer and the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context) (*Job, error)
}

// Hasher digests payloads for log correlation.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates request identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
