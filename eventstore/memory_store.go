package eventstore

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/giftcard/domain"
)

// MemoryEventStore keeps the log in process. Used by tests and the memory database driver.
type MemoryEventStore struct {
	mu        sync.RWMutex
	events    []StoredEvent
	published []bool
	streams   map[uuid.UUID][]int
	pageSize  int
	now       func() time.Time
}

// NewMemoryEventStore creates an empty in-memory store
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		streams:  make(map[uuid.UUID][]int),
		pageSize: DefaultPageSize,
		now:      recordedNow,
	}
}

func (s *MemoryEventStore) Append(ctx context.Context, streamID uuid.UUID, expectedVersion int64, events []domain.Event) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Op: "append", Err: err}
	}
	if err := checkStream(streamID, events); err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(events))
	for i, e := range events {
		payload, err := Encode(e)
		if err != nil {
			return nil, err
		}
		payloads[i] = payload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	head := int64(len(s.streams[streamID]))
	if head != expectedVersion {
		return nil, &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: head}
	}

	recordedOn := s.now()
	stored := make([]StoredEvent, len(events))
	for i, e := range events {
		ev := StoredEvent{
			Position:   int64(len(s.events)) + 1,
			EventID:    uuid.New(),
			StreamID:   streamID,
			Sequence:   expectedVersion + int64(i) + 1,
			EventType:  e.EventType(),
			Payload:    payloads[i],
			RecordedOn: recordedOn,
		}
		s.streams[streamID] = append(s.streams[streamID], len(s.events))
		s.events = append(s.events, ev)
		s.published = append(s.published, false)
		stored[i] = ev
	}
	return stored, nil
}

func (s *MemoryEventStore) Load(ctx context.Context, streamID uuid.UUID) ([]StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Op: "load", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.streams[streamID]
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	out := make([]StoredEvent, len(idx))
	for i, n := range idx {
		out[i] = s.events[n]
	}
	return out, nil
}

func (s *MemoryEventStore) LoadAll(ctx context.Context, afterPosition int64) iter.Seq2[StoredEvent, error] {
	return func(yield func(StoredEvent, error) bool) {
		after := afterPosition
		for {
			if err := ctx.Err(); err != nil {
				yield(StoredEvent{}, &UnavailableError{Op: "load all", Err: err})
				return
			}
			page := s.page(after)
			for _, ev := range page {
				if !yield(ev, nil) {
					return
				}
				after = ev.Position
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

func (s *MemoryEventStore) page(after int64) []StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.events)) {
		return nil
	}
	end := min(after+int64(s.pageSize), int64(len(s.events)))
	out := make([]StoredEvent, end-after)
	copy(out, s.events[after:end])
	return out
}

func (s *MemoryEventStore) Unpublished(ctx context.Context, limit int) ([]StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Op: "unpublished", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StoredEvent
	for i, ev := range s.events {
		if len(out) >= limit {
			break
		}
		if !s.published[i] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryEventStore) MarkPublished(ctx context.Context, positions ...int64) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Op: "mark published", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range positions {
		if p >= 1 && p <= int64(len(s.published)) {
			s.published[p-1] = true
		}
	}
	return nil
}
