package queries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/cache"
	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/handlers"
	"example.com/backstage/services/giftcard/models"
	"example.com/backstage/services/giftcard/repositories"
)

// GiftCardView is the public shape of a gift card. The PIN is never exposed.
type GiftCardView struct {
	ID                        uuid.UUID    `json:"id"`
	TenantID                  string       `json:"tenant_id"`
	CardNumber                string       `json:"card_number"`
	Balance                   domain.Money `json:"balance"`
	InitialAmount             domain.Money `json:"initial_amount"`
	Status                    string       `json:"status"`
	CreatedAt                 time.Time    `json:"created_at"`
	ExpiresAt                 *time.Time   `json:"expires_at,omitempty"`
	ActivatedAt               *time.Time   `json:"activated_at,omitempty"`
	SuspendedAt               *time.Time   `json:"suspended_at,omitempty"`
	CancelledAt               *time.Time   `json:"cancelled_at,omitempty"`
	ExpiredAt                 *time.Time   `json:"expired_at,omitempty"`
	DepletedAt                *time.Time   `json:"depleted_at,omitempty"`
	SuspensionDurationSeconds *int64       `json:"suspension_duration_seconds,omitempty"`
	Version                   int64        `json:"version"`
	UpdatedAt                 *time.Time   `json:"updated_at,omitempty"`
}

// HistoryEntry is one event with the card as it stood right after it
type HistoryEntry struct {
	Sequence   int64        `json:"sequence"`
	EventType  string       `json:"event_type"`
	RecordedOn time.Time    `json:"recorded_on"`
	Event      domain.Event `json:"event"`
	Snapshot   GiftCardView `json:"snapshot"`
}

// Page is one page of a tenant's gift cards
type Page struct {
	Items      []GiftCardView `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int64          `json:"total"`
	TotalPages int64          `json:"total_pages"`
}

// Service answers gift card queries from the read model. Only the history replays the event log.
type Service struct {
	repo  repositories.GiftCardRepository
	store eventstore.EventStore
	cache cache.Cache
}

// NewService creates a query service. c may be nil.
func NewService(repo repositories.GiftCardRepository, store eventstore.EventStore, c cache.Cache) *Service {
	return &Service{repo: repo, store: store, cache: c}
}

// GetGiftCard returns one card of the tenant
func (s *Service) GetGiftCard(ctx context.Context, tenantID string, id uuid.UUID) (GiftCardView, error) {
	return s.cached(ctx, tenantID, cache.GiftCardKey(id), &domain.NotFoundError{ID: id}, func() (*models.GiftCard, error) {
		return s.repo.Find(ctx, id)
	})
}

// GetGiftCardByCardNumber looks a card up by its customer-facing number
func (s *Service) GetGiftCardByCardNumber(ctx context.Context, tenantID, number string) (GiftCardView, error) {
	notFound := fmt.Errorf("%w: card number %s", domain.ErrGiftCardNotFound, maskCardNumber(number))
	return s.cached(ctx, tenantID, cache.CardNumberKey(number), notFound, func() (*models.GiftCard, error) {
		return s.repo.FindByCardNumber(ctx, number)
	})
}

// cached is cache-aside around a read model lookup. Cards of another tenant are reported as notFound.
func (s *Service) cached(ctx context.Context, tenantID, key string, notFound error, load func() (*models.GiftCard, error)) (GiftCardView, error) {
	if s.cache != nil {
		var view GiftCardView
		err := s.cache.Get(ctx, key, &view)
		switch {
		case err == nil:
			if view.TenantID != tenantID {
				return GiftCardView{}, notFound
			}
			return view, nil
		case errors.Is(err, cache.ErrCacheMiss), errors.Is(err, cache.ErrDisabled):
		default:
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
	}

	row, err := load()
	if errors.Is(err, repositories.ErrNotFound) {
		return GiftCardView{}, notFound
	}
	if err != nil {
		return GiftCardView{}, fmt.Errorf("failed to read gift card: %w", err)
	}
	view := viewFromRow(row)
	if view.TenantID != tenantID {
		return GiftCardView{}, notFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, view); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return view, nil
}

// GetGiftCardHistory replays the stream and pairs every event with the snapshot after it
func (s *Service) GetGiftCardHistory(ctx context.Context, tenantID string, id uuid.UUID) ([]HistoryEntry, error) {
	stored, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrStreamNotFound) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load gift card history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(stored))
	var state domain.State
	for _, se := range stored {
		event, err := se.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode gift card history: %w", err)
		}
		state = domain.Apply(state, event)
		entries = append(entries, HistoryEntry{
			Sequence:   se.Sequence,
			EventType:  se.EventType,
			RecordedOn: se.RecordedOn,
			Event:      redact(event),
			Snapshot:   viewFromState(state),
		})
	}
	if state.TenantID != tenantID {
		return nil, &domain.NotFoundError{ID: id}
	}
	return entries, nil
}

// GetGiftCards lists one page of the tenant's cards, newest first
func (s *Service) GetGiftCards(ctx context.Context, tenantID string, page, limit int, status string) (Page, error) {
	if status != "" {
		if _, err := domain.ParseStatus(status); err != nil {
			return Page{}, &handlers.ValidationError{Problems: []string{err.Error()}}
		}
	}

	filter := repositories.ListFilter{TenantID: tenantID, Status: status, Page: page, Limit: limit}.Normalize()
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	items := make([]GiftCardView, 0, len(rows))
	for i := range rows {
		items = append(items, viewFromRow(&rows[i]))
	}
	return Page{
		Items:      items,
		Page:       filter.Page,
		Limit:      filter.Limit,
		Total:      total,
		TotalPages: (total + int64(filter.Limit) - 1) / int64(filter.Limit),
	}, nil
}

func viewFromRow(row *models.GiftCard) GiftCardView {
	updated := row.UpdatedAt
	return GiftCardView{
		ID:                        uuid.MustParse(row.GiftCardID),
		TenantID:                  row.TenantID,
		CardNumber:                row.CardNumber,
		Balance:                   domain.Money{Amount: row.BalanceAmount, Currency: row.BalanceCurrency},
		InitialAmount:             domain.Money{Amount: row.InitialAmount, Currency: row.InitialCurrency},
		Status:                    row.Status,
		CreatedAt:                 row.CreatedAt,
		ExpiresAt:                 row.ExpiresAt,
		ActivatedAt:               row.ActivatedAt,
		SuspendedAt:               row.SuspendedAt,
		CancelledAt:               row.CancelledAt,
		ExpiredAt:                 row.ExpiredAt,
		DepletedAt:                row.DepletedAt,
		SuspensionDurationSeconds: row.SuspensionDuration,
		Version:                   row.Version,
		UpdatedAt:                 &updated,
	}
}

func viewFromState(s domain.State) GiftCardView {
	return GiftCardView{
		ID:                        s.ID,
		TenantID:                  s.TenantID,
		CardNumber:                s.CardNumber,
		Balance:                   s.Balance,
		InitialAmount:             s.InitialAmount,
		Status:                    string(s.Status),
		CreatedAt:                 s.CreatedAt,
		ExpiresAt:                 s.ExpiresAt,
		ActivatedAt:               s.ActivatedAt,
		SuspendedAt:               s.SuspendedAt,
		CancelledAt:               s.CancelledAt,
		ExpiredAt:                 s.ExpiredAt,
		DepletedAt:                s.DepletedAt,
		SuspensionDurationSeconds: s.SuspensionDurationSeconds,
		Version:                   s.Version,
	}
}

// redact drops the PIN from the creation event before it leaves the service.
func redact(e domain.Event) domain.Event {
	if created, ok := e.(domain.GiftCardCreated); ok {
		created.PIN = ""
		return created
	}
	return e
}

func maskCardNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return "****" + number[len(number)-4:]
}
