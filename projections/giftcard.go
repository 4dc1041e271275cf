package projections

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
	"example.com/backstage/services/giftcard/metrics"
	"example.com/backstage/services/giftcard/models"
	"example.com/backstage/services/giftcard/repositories"
)

// ErrSequenceGap means an event arrived before its predecessor was projected.
var ErrSequenceGap = errors.New("sequence gap")

// SequenceGapError reports the version the row is at and the sequence that arrived
type SequenceGapError struct {
	GiftCardID uuid.UUID
	Version    int64
	Sequence   int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("gift card %s is at version %d, cannot apply sequence %d", e.GiftCardID, e.Version, e.Sequence)
}

func (e *SequenceGapError) Unwrap() error { return ErrSequenceGap }

// Indexer mirrors read model rows into a search index
type Indexer interface {
	IndexGiftCard(ctx context.Context, row *models.GiftCard) error
	Reset(ctx context.Context) error
}

// rowUpdater applies one decoded event to a read model row.
type rowUpdater func(row *models.GiftCard, event domain.Event)

// on adapts a typed updater to the dispatch table.
func on[E domain.Event](fn func(row *models.GiftCard, event E)) rowUpdater {
	return func(row *models.GiftCard, event domain.Event) {
		fn(row, event.(E))
	}
}

// GiftCardProjector keeps the gift_cards table in step with the event log
type GiftCardProjector struct {
	repo     repositories.GiftCardRepository
	cache    cache.Cache
	indexer  Indexer
	updaters map[string]rowUpdater
}

// NewGiftCardProjector creates a projector. cache and indexer may be nil.
func NewGiftCardProjector(repo repositories.GiftCardRepository, c cache.Cache, indexer Indexer) *GiftCardProjector {
	return &GiftCardProjector{
		repo:    repo,
		cache:   c,
		indexer: indexer,
		updaters: map[string]rowUpdater{
			domain.GiftCardActivatedType:        on(projectActivated),
			domain.GiftCardRedeemedType:         on(projectRedeemed),
			domain.GiftCardDepletedType:         on(projectDepleted),
			domain.GiftCardSuspendedType:        on(projectSuspended),
			domain.GiftCardReactivatedType:      on(projectReactivated),
			domain.GiftCardCancelledType:        on(projectCancelled),
			domain.GiftCardExpiredType:          on(projectExpired),
			domain.GiftCardBalanceAdjustedType:  on(projectBalanceAdjusted),
			domain.GiftCardBalanceDecreasedType: on(projectBalanceDecreased),
		},
	}
}

// Project applies one stored event. It is safe to call more than once with the
// same event; an error asks the transport to deliver it again.
func (p *GiftCardProjector) Project(ctx context.Context, stored eventstore.StoredEvent) error {
	logger := log.With().
		Str("giftCardID", stored.StreamID.String()).
		Str("eventType", stored.EventType).
		Int64("sequence", stored.Sequence).
		Logger()

	event, err := stored.Decode()
	if err != nil {
		if errors.Is(err, eventstore.ErrUnknownEventType) {
			logger.Warn().Msg("Unknown event type, skipping")
			return nil
		}
		return err
	}

	var row *models.GiftCard
	var outcome string
	if created, ok := event.(domain.GiftCardCreated); ok {
		row, outcome, err = p.insert(ctx, stored, created)
	} else {
		row, outcome, err = p.update(ctx, stored, event)
	}
	metrics.ProjectedEvents.WithLabelValues(stored.EventType, outcome).Inc()
	if err != nil {
		return err
	}

	switch outcome {
	case metrics.OutcomeOK:
		logger.Debug().Msg("Event projected")
		p.sideEffects(ctx, row)
	case metrics.OutcomeDuplicate:
		logger.Debug().Msg("Duplicate event, skipping")
	case metrics.OutcomeMissing:
		logger.Debug().Msg("No read model row for event, skipping")
	}
	return nil
}

func (p *GiftCardProjector) insert(ctx context.Context, stored eventstore.StoredEvent, e domain.GiftCardCreated) (*models.GiftCard, string, error) {
	row := &models.GiftCard{
		GiftCardID:      e.GiftCardID.String(),
		TenantID:        e.TenantID,
		CardNumber:      e.CardNumber,
		PIN:             e.PIN,
		BalanceAmount:   e.Amount.Amount,
		BalanceCurrency: e.Amount.Currency,
		InitialAmount:   e.Amount.Amount,
		InitialCurrency: e.Amount.Currency,
		Status:          string(domain.StatusInactive),
		CreatedAt:       e.CreatedAt.Time,
		ExpiresAt:       timestampPtr(e.ExpiresAt),
		Version:         stored.Sequence,
		UpdatedAt:       e.CreatedAt.Time,
	}

	err := p.repo.Insert(ctx, row)
	if errors.Is(err, repositories.ErrDuplicate) {
		// Only a row for this very card counts as a duplicate; anything else is a real clash.
		if _, findErr := p.repo.Find(ctx, e.GiftCardID); findErr == nil {
			return row, metrics.OutcomeDuplicate, nil
		}
		return nil, metrics.OutcomeError, fmt.Errorf("failed to project gift card %s: %w", e.GiftCardID, err)
	}
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("failed to project gift card %s: %w", e.GiftCardID, err)
	}
	return row, metrics.OutcomeOK, nil
}

func (p *GiftCardProjector) update(ctx context.Context, stored eventstore.StoredEvent, event domain.Event) (*models.GiftCard, string, error) {
	apply, ok := p.updaters[stored.EventType]
	if !ok {
		return nil, metrics.OutcomeError, fmt.Errorf("%w: %s", eventstore.ErrUnknownEventType, stored.EventType)
	}

	row, err := p.repo.Find(ctx, stored.StreamID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, metrics.OutcomeMissing, nil
	}
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("failed to load gift card %s: %w", stored.StreamID, err)
	}

	switch {
	case stored.Sequence <= row.Version:
		return row, metrics.OutcomeDuplicate, nil
	case stored.Sequence > row.Version+1:
		return nil, metrics.OutcomeGap, &SequenceGapError{GiftCardID: stored.StreamID, Version: row.Version, Sequence: stored.Sequence}
	}

	expected := row.Version
	apply(row, event)
	row.Version = stored.Sequence
	row.UpdatedAt = event.OccurredOn().Time

	if err := p.repo.Update(ctx, row, expected); err != nil {
		return nil, metrics.OutcomeConflict, fmt.Errorf("failed to update gift card %s: %w", stored.StreamID, err)
	}
	return row, metrics.OutcomeOK, nil
}

// sideEffects refreshes the cache and the search mirror. Failures are logged only.
func (p *GiftCardProjector) sideEffects(ctx context.Context, row *models.GiftCard) {
	if p.cache != nil {
		id, _ := uuid.Parse(row.GiftCardID)
		if err := p.cache.Delete(ctx, cache.GiftCardKey(id), cache.CardNumberKey(row.CardNumber)); err != nil {
			log.Warn().Err(err).Str("giftCardID", row.GiftCardID).Msg("Failed to evict gift card from cache")
		}
	}
	if p.indexer != nil {
		if err := p.indexer.IndexGiftCard(ctx, row); err != nil {
			log.Warn().Err(err).Str("giftCardID", row.GiftCardID).Msg("Failed to index gift card")
		}
	}
}

func projectActivated(row *models.GiftCard, e domain.GiftCardActivated) {
	row.Status = string(domain.StatusActive)
	row.ActivatedAt = timePtr(e.ActivatedAt.Time)
}

func projectRedeemed(row *models.GiftCard, e domain.GiftCardRedeemed) {
	row.BalanceAmount -= e.Amount.Amount
}

func projectDepleted(row *models.GiftCard, e domain.GiftCardDepleted) {
	row.Status = string(domain.StatusDepleted)
	row.DepletedAt = timePtr(e.DepletedAt.Time)
}

func projectSuspended(row *models.GiftCard, e domain.GiftCardSuspended) {
	duration := e.DurationSeconds
	row.Status = string(domain.StatusSuspended)
	row.SuspendedAt = timePtr(e.SuspendedAt.Time)
	row.SuspensionDuration = &duration
}

func projectReactivated(row *models.GiftCard, e domain.GiftCardReactivated) {
	row.Status = string(domain.StatusActive)
	row.ExpiresAt = timestampPtr(e.ExpiresAt)
	row.SuspendedAt = nil
	row.SuspensionDuration = nil
}

func projectCancelled(row *models.GiftCard, e domain.GiftCardCancelled) {
	row.Status = string(domain.StatusCancelled)
	row.CancelledAt = timePtr(e.CancelledAt.Time)
}

func projectExpired(row *models.GiftCard, e domain.GiftCardExpired) {
	row.Status = string(domain.StatusExpired)
	row.ExpiredAt = timePtr(e.ExpiredAt.Time)
}

func projectBalanceAdjusted(row *models.GiftCard, e domain.GiftCardBalanceAdjusted) {
	row.BalanceAmount += e.Delta
}

func projectBalanceDecreased(row *models.GiftCard, e domain.GiftCardBalanceDecreased) {
	row.BalanceAmount -= e.Amount.Amount
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func timestampPtr(t *domain.Timestamp) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(t.Time)
}
