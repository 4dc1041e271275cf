package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/clock"
	"example.com/backstage/services/giftcard/domain"
	"example.com/backstage/services/giftcard/eventstore"
	"example.com/backstage/services/giftcard/metrics"
)

// Notifier is woken after every successful append. The outbox relay implements it.
type Notifier interface {
	Notify()
}

// GiftCardHandler runs one intent per command: load, mutate, append.
type GiftCardHandler struct {
	store    eventstore.EventStore
	clock    clock.Clock
	codes    domain.CodeGenerator
	notifier Notifier
}

// NewGiftCardHandler creates a new gift card handler. notifier may be nil.
func NewGiftCardHandler(store eventstore.EventStore, clk clock.Clock, codes domain.CodeGenerator, notifier Notifier) *GiftCardHandler {
	return &GiftCardHandler{store: store, clock: clk, codes: codes, notifier: notifier}
}

// HandleCreateGiftCard issues a new card and returns its id
func (h *GiftCardHandler) HandleCreateGiftCard(ctx context.Context, cmd CreateGiftCardCommand) (uuid.UUID, error) {
	start := time.Now()
	id, err := h.create(ctx, cmd)
	h.observe(CreateGiftCard, start, err)
	return id, err
}

func (h *GiftCardHandler) create(ctx context.Context, cmd CreateGiftCardCommand) (uuid.UUID, error) {
	if err := validateCommand(cmd); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	if cmd.GiftCardID != "" {
		id = uuid.MustParse(cmd.GiftCardID)
	}
	log.Info().Str("giftCardID", id.String()).Str("tenantID", cmd.TenantID).Msg("Handling CreateGiftCard command")

	amount, err := domain.NewMoney(cmd.Amount, cmd.Currency)
	if err != nil {
		return uuid.Nil, err
	}

	// Check if the gift card already exists
	if _, err := h.store.Load(ctx, id); err == nil {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrGiftCardAlreadyExists, id)
	} else if !errors.Is(err, eventstore.ErrStreamNotFound) {
		return uuid.Nil, fmt.Errorf("failed to check if gift card exists: %w", err)
	}

	createdAt := h.clock.Now()
	if cmd.CreatedAt != nil {
		if cmd.CreatedAt.After(createdAt) {
			return uuid.Nil, invalid("created_at must not be in the future")
		}
		createdAt = *cmd.CreatedAt
	}

	card, err := domain.Create(id, cmd.TenantID, amount, createdAt, cmd.ExpiresAt, h.codes)
	if err != nil {
		return uuid.Nil, err
	}
	if err := h.save(ctx, card); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// HandleActivateGiftCard activates an inactive card
func (h *GiftCardHandler) HandleActivateGiftCard(ctx context.Context, cmd ActivateGiftCardCommand) error {
	return h.execute(ctx, ActivateGiftCard, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		return card.Activate(now)
	})
}

// HandleRedeemGiftCard spends from the balance
func (h *GiftCardHandler) HandleRedeemGiftCard(ctx context.Context, cmd RedeemGiftCardCommand) error {
	return h.execute(ctx, RedeemGiftCard, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		amount, err := domain.NewMoney(cmd.Amount, cmd.Currency)
		if err != nil {
			return err
		}
		return card.Redeem(amount, now)
	})
}

// HandleSuspendGiftCard suspends an active card
func (h *GiftCardHandler) HandleSuspendGiftCard(ctx context.Context, cmd SuspendGiftCardCommand) error {
	return h.execute(ctx, SuspendGiftCard, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		return card.Suspend(cmd.Reason, cmd.DurationSeconds, now)
	})
}

// HandleReactivateGiftCard lifts a suspension
func (h *GiftCardHandler) HandleReactivateGiftCard(ctx context.Context, cmd ReactivateGiftCardCommand) error {
	return h.execute(ctx, ReactivateGiftCard, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		return card.Reactivate(cmd.Reason, now)
	})
}

// HandleCancelGiftCard cancels an active or suspended card
func (h *GiftCardHandler) HandleCancelGiftCard(ctx context.Context, cmd CancelGiftCardCommand) error {
	return h.execute(ctx, CancelGiftCard, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		return card.Cancel(cmd.Reason, now)
	})
}

// HandleExpireGiftCard expires a card past its expiry date
func (h *GiftCardHandler) HandleExpireGiftCard(ctx context.Context, cmd ExpireGiftCardCommand) error {
	return h.execute(ctx, ExpireGiftCard, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		return card.Expire(now)
	})
}

// HandleAdjustBalance applies a signed balance correction
func (h *GiftCardHandler) HandleAdjustBalance(ctx context.Context, cmd AdjustBalanceCommand) error {
	return h.execute(ctx, AdjustBalance, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		return card.AdjustBalance(cmd.Delta, cmd.Reason, now)
	})
}

// HandleDecreaseBalance removes an amount outside of a redemption
func (h *GiftCardHandler) HandleDecreaseBalance(ctx context.Context, cmd DecreaseBalanceCommand) error {
	return h.execute(ctx, DecreaseBalance, cmd, cmd.GiftCardID, cmd.TenantID, func(card *domain.GiftCard, now time.Time) error {
		amount, err := domain.NewMoney(cmd.Amount, cmd.Currency)
		if err != nil {
			return err
		}
		return card.DecreaseBalance(amount, cmd.Reason, now)
	})
}

type intent func(card *domain.GiftCard, now time.Time) error

func (h *GiftCardHandler) execute(ctx context.Context, command string, cmd any, rawID, tenantID string, fn intent) error {
	start := time.Now()
	err := h.run(ctx, command, cmd, rawID, tenantID, fn)
	h.observe(command, start, err)
	return err
}

func (h *GiftCardHandler) run(ctx context.Context, command string, cmd any, rawID, tenantID string, fn intent) error {
	if err := validateCommand(cmd); err != nil {
		return err
	}
	id := uuid.MustParse(rawID)
	log.Info().Str("giftCardID", rawID).Str("command", command).Msg("Handling command")

	card, err := h.load(ctx, id, tenantID)
	if err != nil {
		return err
	}
	if err := fn(card, h.clock.Now()); err != nil {
		return fmt.Errorf("failed to %s gift card %s: %w", command, id, err)
	}
	return h.save(ctx, card)
}

// load replays the stream. A card owned by another tenant is reported as missing.
func (h *GiftCardHandler) load(ctx context.Context, id uuid.UUID, tenantID string) (*domain.GiftCard, error) {
	stored, err := h.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrStreamNotFound) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load gift card: %w", err)
	}
	history, err := eventstore.DecodeAll(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decode gift card %s: %w", id, err)
	}

	card := domain.Rehydrate(history)
	if card.Snapshot().TenantID != tenantID {
		return nil, &domain.NotFoundError{ID: id}
	}
	return card, nil
}

func (h *GiftCardHandler) save(ctx context.Context, card *domain.GiftCard) error {
	changes := card.Changes()
	if len(changes) == 0 {
		return nil
	}
	if _, err := h.store.Append(ctx, card.ID(), card.LoadedVersion(), changes); err != nil {
		return fmt.Errorf("failed to save gift card %s: %w", card.ID(), err)
	}
	card.MarkCommitted()

	for _, e := range changes {
		metrics.EventsAppended.WithLabelValues(e.EventType()).Inc()
	}
	if h.notifier != nil {
		h.notifier.Notify()
	}
	return nil
}

func (h *GiftCardHandler) observe(command string, start time.Time, err error) {
	metrics.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())

	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		outcome = metrics.OutcomeConflict
	case IsRejection(err):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()

	if err != nil && outcome != metrics.OutcomeRejected {
		log.Error().Err(err).Str("command", command).Msg("Command failed")
	}
}

// IsRejection reports whether err is a validation or business rule failure rather than an infrastructure one.
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var rejections = []error{
	ErrValidation,
	domain.ErrGiftCardNotFound,
	domain.ErrGiftCardAlreadyExists,
	domain.ErrInvalidStatus,
	domain.ErrInsufficientBalance,
	domain.ErrInvalidAmount,
	domain.ErrInvalidCurrency,
	domain.ErrCurrencyMismatch,
	domain.ErrNegativeBalance,
	domain.ErrInvalidExpiration,
	domain.ErrGiftCardExpired,
	domain.ErrGiftCardNotExpired,
	domain.ErrNoExpirationDate,
	domain.ErrMissingSuspensionDuration,
	domain.ErrInvalidSuspensionDuration,
	domain.ErrMissingTenant,
}
