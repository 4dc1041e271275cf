package eventstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/testutil"
)

var at = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func created(id uuid.UUID) domain.GiftCardCreated {
	return domain.GiftCardCreated{
		GiftCardID: id,
		TenantID:   "tenant-1",
		Amount:     domain.Money{Amount: 1000, Currency: "PLN"},
		CardNumber: "4539578763621486",
		PIN:        "1234",
		CreatedAt:  domain.NewTimestamp(at),
	}
}

func activated(id uuid.UUID) domain.GiftCardActivated {
	return domain.GiftCardActivated{GiftCardID: id, ActivatedAt: domain.NewTimestamp(at.Add(time.Minute))}
}

func redeemed(id uuid.UUID, amount int64) domain.GiftCardRedeemed {
	return domain.GiftCardRedeemed{
		GiftCardID: id,
		Amount:     domain.Money{Amount: amount, Currency: "PLN"},
		RedeemedAt: domain.NewTimestamp(at.Add(time.Hour)),
	}
}

// storeContract runs the behaviour every Store implementation shares.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("append and load", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.New()

		stored, err := s.Append(ctx, id, 0, []domain.Event{created(id), activated(id)})
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, int64(1), stored[0].Sequence)
		assert.Equal(t, int64(2), stored[1].Sequence)
		assert.Less(t, stored[0].Position, stored[1].Position)

		stored, err = s.Append(ctx, id, 2, []domain.Event{redeemed(id, 400)})
		require.NoError(t, err)
		assert.Equal(t, int64(3), stored[0].Sequence)

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		for i, ev := range loaded {
			assert.Equal(t, int64(i+1), ev.Sequence)
			assert.Equal(t, id, ev.StreamID)
		}

		events, err := DecodeAll(loaded)
		require.NoError(t, err)
		assert.Equal(t, []domain.Event{created(id), activated(id), redeemed(id, 400)}, events)
	})

	t.Run("recorded on is the append time", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.New()

		before := time.Now().UTC().Truncate(time.Microsecond)
		stored, err := s.Append(ctx, id, 0, []domain.Event{created(id), activated(id)})
		require.NoError(t, err)
		after := time.Now().UTC()

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		for i, ev := range loaded {
			assert.True(t, ev.RecordedOn.Equal(stored[i].RecordedOn))
			assert.False(t, ev.RecordedOn.Before(before), ev.RecordedOn)
			assert.False(t, ev.RecordedOn.After(after), ev.RecordedOn)
		}
		// The event keeps its own timestamp.
		events, err := DecodeAll(loaded)
		require.NoError(t, err)
		assert.True(t, events[0].OccurredOn().Equal(at))
	})

	t.Run("empty append is a no-op", func(t *testing.T) {
		s := newStore(t)
		id := uuid.New()
		stored, err := s.Append(context.Background(), id, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, stored)

		_, err = s.Load(context.Background(), id)
		assert.ErrorIs(t, err, ErrStreamNotFound)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.New()
		_, err := s.Append(ctx, id, 0, []domain.Event{created(id)})
		require.NoError(t, err)

		_, err = s.Append(ctx, id, 0, []domain.Event{created(id)})
		require.ErrorIs(t, err, ErrConcurrencyConflict)
		var conflict *ConcurrencyError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, id, conflict.StreamID)
		assert.Equal(t, int64(0), conflict.Expected)

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Len(t, loaded, 1)
	})

	t.Run("racing appends have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.New()
		_, err := s.Append(ctx, id, 0, []domain.Event{created(id), activated(id)})
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.Append(ctx, id, 2, []domain.Event{redeemed(id, 10)})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrConcurrencyConflict)
		}
		assert.Equal(t, 1, wins)

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Len(t, loaded, 3)
	})

	t.Run("event from another stream is rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Append(context.Background(), uuid.New(), 0, []domain.Event{created(uuid.New())})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrConcurrencyConflict)
	})

	t.Run("load all is ordered and restartable", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a, b := uuid.New(), uuid.New()
		_, err := s.Append(ctx, a, 0, []domain.Event{created(a)})
		require.NoError(t, err)
		_, err = s.Append(ctx, b, 0, []domain.Event{created(b), activated(b)})
		require.NoError(t, err)
		_, err = s.Append(ctx, a, 1, []domain.Event{activated(a)})
		require.NoError(t, err)

		var all []StoredEvent
		for ev, err := range s.LoadAll(ctx, 0) {
			require.NoError(t, err)
			all = append(all, ev)
		}
		require.Len(t, all, 4)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].Position, all[i].Position)
		}

		var rest []StoredEvent
		for ev, err := range s.LoadAll(ctx, all[1].Position) {
			require.NoError(t, err)
			rest = append(rest, ev)
		}
		assert.Equal(t, all[2:], rest)
	})

	t.Run("outbox", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := uuid.New()
		stored, err := s.Append(ctx, id, 0, []domain.Event{created(id), activated(id)})
		require.NoError(t, err)

		pending, err := s.Unpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, stored[0].Position, pending[0].Position)

		limited, err := s.Unpublished(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		require.NoError(t, s.MarkPublished(ctx, stored[0].Position))
		pending, err = s.Unpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, stored[1].Position, pending[0].Position)
	})
}

func TestMemoryEventStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return NewMemoryEventStore()
	})
}

func TestGormEventStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return NewGormEventStore(testutil.NewTestDB(t))
	})
}

func TestMemoryLoadAllPages(t *testing.T) {
	s := NewMemoryEventStore()
	s.pageSize = 2
	ctx := context.Background()

	var ids []uuid.UUID
	for range 5 {
		id := uuid.New()
		ids = append(ids, id)
		_, err := s.Append(ctx, id, 0, []domain.Event{created(id)})
		require.NoError(t, err)
	}

	var seen []uuid.UUID
	for ev, err := range s.LoadAll(ctx, 0) {
		require.NoError(t, err)
		seen = append(seen, ev.StreamID)
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, ids[:3], seen)
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	s := NewMemoryEventStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := uuid.New()
	_, err := s.Append(ctx, id, 0, []domain.Event{created(id)})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	for _, err := range s.LoadAll(ctx, 0) {
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode("V1_GIFT_CARD_TELEPORTED", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Decode(domain.GiftCardCreatedType, []byte(`{"created_at": 12}`))
	assert.Error(t, err)
}

func TestDecodeReturnsValueTypes(t *testing.T) {
	id := uuid.New()
	payload, err := Encode(redeemed(id, 5))
	require.NoError(t, err)

	e, err := Decode(domain.GiftCardRedeemedType, payload)
	require.NoError(t, err)
	_, ok := e.(domain.GiftCardRedeemed)
	assert.True(t, ok)
	assert.Equal(t, redeemed(id, 5), e)
}
