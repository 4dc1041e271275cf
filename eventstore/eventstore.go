package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/giftcard/domain"
)

// DefaultPageSize bounds how many rows LoadAll holds at once.
const DefaultPageSize = 500

// recordedNow stamps appended rows. Postgres keeps microseconds, so the memory store truncates the same way.
func recordedNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// StoredEvent is one persisted event with its stream coordinates. RecordedOn is
// when the row was appended, which can differ from the event's own timestamp.
type StoredEvent struct {
	Position   int64           `json:"position"`
	EventID    uuid.UUID       `json:"event_id"`
	StreamID   uuid.UUID       `json:"stream_id"`
	Sequence   int64           `json:"sequence"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	RecordedOn time.Time       `json:"recorded_on"`
}

// Decode returns the domain event carried by the record.
func (e StoredEvent) Decode() (domain.Event, error) {
	return Decode(e.EventType, e.Payload)
}

// EventStore is the append-only log of gift card events.
type EventStore interface {
	// Append writes events at expectedVersion+1... or fails with ErrConcurrencyConflict.
	Append(ctx context.Context, streamID uuid.UUID, expectedVersion int64, events []domain.Event) ([]StoredEvent, error)

	// Load returns a stream in sequence order, or ErrStreamNotFound.
	Load(ctx context.Context, streamID uuid.UUID) ([]StoredEvent, error)

	// LoadAll yields every event after the given global position, one page at a time.
	LoadAll(ctx context.Context, afterPosition int64) iter.Seq2[StoredEvent, error]
}

// Outbox tracks which stored events have been handed to the event channel.
type Outbox interface {
	Unpublished(ctx context.Context, limit int) ([]StoredEvent, error)
	MarkPublished(ctx context.Context, positions ...int64) error
}

// Store is an event store with an outbox.
type Store interface {
	EventStore
	Outbox
}

// DecodeAll decodes a loaded stream.
func DecodeAll(stored []StoredEvent) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(stored))
	for _, s := range stored {
		e, err := s.Decode()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func checkStream(streamID uuid.UUID, events []domain.Event) error {
	for _, e := range events {
		if e.GiftCard() != streamID {
			return fmt.Errorf("event %s belongs to stream %s, not %s", e.EventType(), e.GiftCard(), streamID)
		}
	}
	return nil
}
