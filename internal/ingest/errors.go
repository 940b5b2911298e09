package ingest

import (
	"errors"
	"fmt"
)

// ErrQueueClosed is returned by a Queue after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// ErrNotText rejects a request body that is not valid UTF-8.
var ErrNotText = errors.New("body is not valid UTF-8 text")

// Stage names one step of the pipeline and doubles as its failure class.
type Stage string

// Pipeline stages in execution order.
const (
	StageReceive Stage = "receive"
	StagePersist Stage = "persist"
	StageParse   Stage = "parse"
	StageCompose Stage = "compose"
	StageDeliver Stage = "deliver"
)

// StageError reports the stage at which processing stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage recorded in err, or "" if there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
