package eventstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/models"
)

const uniqueViolation = "23505"

// GormEventStore implements Store using GORM
type GormEventStore struct {
	db       *gorm.DB
	pageSize int
	now      func() time.Time
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db, pageSize: DefaultPageSize, now: recordedNow}
}

// Append saves events to the stream inside one transaction
func (s *GormEventStore) Append(ctx context.Context, streamID uuid.UUID, expectedVersion int64, events []domain.Event) ([]StoredEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := checkStream(streamID, events); err != nil {
		return nil, err
	}

	recordedOn := s.now()
	rows := make([]models.Event, len(events))
	for i, e := range events {
		payload, err := Encode(e)
		if err != nil {
			return nil, err
		}
		rows[i] = models.Event{
			EventID:    uuid.NewString(),
			StreamID:   streamID.String(),
			Sequence:   expectedVersion + int64(i) + 1,
			EventType:  e.EventType(),
			Payload:    payload,
			RecordedOn: recordedOn,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head int64
		if err := tx.Model(&models.Event{}).
			Where("stream_id = ?", streamID.String()).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&head).Error; err != nil {
			return err
		}
		if head != expectedVersion {
			return &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: head}
		}

		if err := tx.Create(&rows).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConcurrencyError{StreamID: streamID, Expected: expectedVersion, Actual: -1}
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			return nil, err
		}
		return nil, &UnavailableError{Op: "append", Err: err}
	}

	stored := make([]StoredEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := toStoredEvent(row)
		if err != nil {
			return nil, err
		}
		stored = append(stored, ev)

		log.Info().
			Str("giftCardID", row.StreamID).
			Str("eventType", row.EventType).
			Int64("sequence", row.Sequence).
			Int64("position", row.Position).
			Msg("Event saved")
	}
	return stored, nil
}

// Load loads a stream in sequence order
func (s *GormEventStore) Load(ctx context.Context, streamID uuid.UUID) ([]StoredEvent, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("stream_id = ?", streamID.String()).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, &UnavailableError{Op: "load", Err: err}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	return toStoredEvents(rows)
}

// LoadAll pages through the whole log by global position
func (s *GormEventStore) LoadAll(ctx context.Context, afterPosition int64) iter.Seq2[StoredEvent, error] {
	return func(yield func(StoredEvent, error) bool) {
		after := afterPosition
		for {
			var rows []models.Event
			if err := s.db.WithContext(ctx).
				Where("position > ?", after).
				Order("position ASC").
				Limit(s.pageSize).
				Find(&rows).Error; err != nil {
				yield(StoredEvent{}, &UnavailableError{Op: "load all", Err: err})
				return
			}

			for _, row := range rows {
				ev, err := toStoredEvent(row)
				if !yield(ev, err) || err != nil {
					return
				}
				after = row.Position
			}
			if len(rows) < s.pageSize {
				return
			}
		}
	}
}

// Unpublished gets events not yet handed to the event channel
func (s *GormEventStore) Unpublished(ctx context.Context, limit int) ([]StoredEvent, error) {
	var rows []models.Event
	if err := s.db.WithContext(ctx).
		Where("published = ?", false).
		Order("position ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, &UnavailableError{Op: "unpublished", Err: err}
	}
	return toStoredEvents(rows)
}

// MarkPublished marks events as published
func (s *GormEventStore) MarkPublished(ctx context.Context, positions ...int64) error {
	if len(positions) == 0 {
		return nil
	}
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("position IN ?", positions).
		Updates(map[string]any{"published": true, "published_at": now}).
		Error; err != nil {
		return &UnavailableError{Op: "mark published", Err: err}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func toStoredEvents(rows []models.Event) ([]StoredEvent, error) {
	out := make([]StoredEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := toStoredEvent(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func toStoredEvent(row models.Event) (StoredEvent, error) {
	streamID, err := uuid.Parse(row.StreamID)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("invalid stream id at position %d: %w", row.Position, err)
	}
	eventID, err := uuid.Parse(row.EventID)
	if err != nil {
		return StoredEvent{}, fmt.Errorf("invalid event id at position %d: %w", row.Position, err)
	}
	return StoredEvent{
		Position:   row.Position,
		EventID:    eventID,
		StreamID:   streamID,
		Sequence:   row.Sequence,
		EventType:  row.EventType,
		Payload:    row.Payload,
		RecordedOn: row.RecordedOn.UTC(),
	}, nil
}
