package eventstore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStoreUnavailable    = errors.New("event store unavailable")
	ErrStreamNotFound      = errors.New("stream not found")
	ErrUnknownEventType    = errors.New("unknown event type")
)

// ConcurrencyError reports an append against a stream head that moved.
// Actual is -1 when the conflict was detected by the unique index rather than the head check.
type ConcurrencyError struct {
	StreamID uuid.UUID
	Expected int64
	Actual   int64
}

func (e *ConcurrencyError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("concurrency conflict on stream %s: sequence after %d already taken", e.StreamID, e.Expected)
	}
	return fmt.Sprintf("concurrency conflict on stream %s: expected version %d, actual %d", e.StreamID, e.Expected, e.Actual)
}

func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// UnavailableError wraps an I/O failure or timeout. Callers may retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("event store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
