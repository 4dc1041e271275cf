package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultValidityYears applies when a card is created without an explicit expiry.
const DefaultValidityYears = 1

// State is everything known about a gift card after replaying its events.
type State struct {
	ID                        uuid.UUID  `json:"id"`
	TenantID                  string     `json:"tenant_id"`
	Balance                   Money      `json:"balance"`
	InitialAmount             Money      `json:"initial_amount"`
	Status                    Status     `json:"status"`
	CardNumber                string     `json:"card_number"`
	PIN                       string     `json:"pin"`
	CreatedAt                 time.Time  `json:"created_at"`
	ExpiresAt                 *time.Time `json:"expires_at,omitempty"`
	ActivatedAt               *time.Time `json:"activated_at,omitempty"`
	SuspendedAt               *time.Time `json:"suspended_at,omitempty"`
	CancelledAt               *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt                 *time.Time `json:"expired_at,omitempty"`
	DepletedAt                *time.Time `json:"depleted_at,omitempty"`
	SuspensionDurationSeconds *int64     `json:"suspension_duration_seconds,omitempty"`
	Version                   int64      `json:"version"`
}

// Apply folds one event into the state. It never validates and never reads the clock.
func Apply(s State, e Event) State {
	switch ev := e.(type) {
	case GiftCardCreated:
		s.ID = ev.GiftCardID
		s.TenantID = ev.TenantID
		s.Balance = ev.Amount
		s.InitialAmount = ev.Amount
		s.Status = StatusInactive
		s.CardNumber = ev.CardNumber
		s.PIN = ev.PIN
		s.CreatedAt = ev.CreatedAt.Time
		s.ExpiresAt = optionalTime(ev.ExpiresAt)
	case GiftCardActivated:
		s.Status = StatusActive
		s.ActivatedAt = timePtr(ev.ActivatedAt)
	case GiftCardRedeemed:
		s.Balance.Amount -= ev.Amount.Amount
	case GiftCardDepleted:
		s.Status = StatusDepleted
		s.DepletedAt = timePtr(ev.DepletedAt)
	case GiftCardSuspended:
		duration := ev.DurationSeconds
		s.Status = StatusSuspended
		s.SuspendedAt = timePtr(ev.SuspendedAt)
		s.SuspensionDurationSeconds = &duration
	case GiftCardReactivated:
		s.Status = StatusActive
		s.ExpiresAt = optionalTime(ev.ExpiresAt)
		s.SuspendedAt = nil
		s.SuspensionDurationSeconds = nil
	case GiftCardCancelled:
		s.Status = StatusCancelled
		s.CancelledAt = timePtr(ev.CancelledAt)
	case GiftCardExpired:
		s.Status = StatusExpired
		s.ExpiredAt = timePtr(ev.ExpiredAt)
	case GiftCardBalanceAdjusted:
		s.Balance.Amount += ev.Delta
	case GiftCardBalanceDecreased:
		s.Balance.Amount -= ev.Amount.Amount
	default:
		return s
	}
	s.Version++
	return s
}

// Replay folds a full history starting from the zero state.
func Replay(history []Event) State {
	var s State
	for _, e := range history {
		s = Apply(s, e)
	}
	return s
}

// GiftCard is the aggregate. Intent methods validate against the replayed
// state and record new events; nothing else mutates it.
type GiftCard struct {
	state   State
	loaded  int64
	changes []Event
}

// Rehydrate rebuilds a gift card from its stored history.
func Rehydrate(history []Event) *GiftCard {
	s := Replay(history)
	return &GiftCard{state: s, loaded: s.Version}
}

// Create issues a new, inactive gift card.
func Create(id uuid.UUID, tenantID string, amount Money, createdAt time.Time, expiresAt *time.Time, codes CodeGenerator) (*GiftCard, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: initial amount must be positive, got %s", ErrInvalidAmount, amount)
	}

	created := NewTimestamp(createdAt)
	expires := NewTimestamp(created.AddDate(DefaultValidityYears, 0, 0))
	if expiresAt != nil {
		expires = NewTimestamp(*expiresAt)
	}
	if !expires.After(created.Time) {
		return nil, fmt.Errorf("%w: expires %s, created %s", ErrInvalidExpiration, expires, created)
	}

	cardNumber, err := codes.CardNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate card number: %w", err)
	}
	pin, err := codes.PIN()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pin: %w", err)
	}

	g := &GiftCard{}
	g.record(GiftCardCreated{
		GiftCardID: id,
		TenantID:   tenantID,
		Amount:     amount,
		CardNumber: cardNumber,
		PIN:        pin,
		ExpiresAt:  &expires,
		CreatedAt:  created,
	})
	return g, nil
}

// ID returns the gift card id.
func (g *GiftCard) ID() uuid.UUID { return g.state.ID }

// Status returns the current status.
func (g *GiftCard) Status() Status { return g.state.Status }

// Balance returns the current balance.
func (g *GiftCard) Balance() Money { return g.state.Balance }

// LoadedVersion is the stream version the aggregate was rehydrated at.
func (g *GiftCard) LoadedVersion() int64 { return g.loaded }

// Changes returns the events recorded since the aggregate was loaded.
func (g *GiftCard) Changes() []Event {
	out := make([]Event, len(g.changes))
	copy(out, g.changes)
	return out
}

// MarkCommitted clears recorded changes after they were appended.
func (g *GiftCard) MarkCommitted() {
	g.changes = nil
	g.loaded = g.state.Version
}

// Snapshot returns a copy of the current state.
func (g *GiftCard) Snapshot() State {
	return g.state
}

// Activate makes an inactive card usable.
func (g *GiftCard) Activate(at time.Time) error {
	if err := g.requireStatus("activate", StatusInactive); err != nil {
		return err
	}
	ts := NewTimestamp(at)
	if g.expiredAt(ts) {
		return fmt.Errorf("%w: expired at %s", ErrGiftCardExpired, g.state.ExpiresAt.Format(TimestampLayout))
	}
	g.record(GiftCardActivated{GiftCardID: g.state.ID, ActivatedAt: ts})
	return nil
}

// Redeem spends amount from the balance. A zero result depletes the card.
func (g *GiftCard) Redeem(amount Money, at time.Time) error {
	if err := g.requireStatus("redeem", StatusActive); err != nil {
		return err
	}
	if err := g.checkDebit(amount); err != nil {
		return err
	}
	ts := NewTimestamp(at)
	if g.expiredAt(ts) {
		return fmt.Errorf("%w: expired at %s", ErrGiftCardExpired, g.state.ExpiresAt.Format(TimestampLayout))
	}
	if err := g.checkAvailable(amount); err != nil {
		return err
	}

	g.record(GiftCardRedeemed{GiftCardID: g.state.ID, Amount: amount, RedeemedAt: ts})
	g.depleteIfEmpty(ts)
	return nil
}

// Suspend blocks an active card for durationSeconds.
func (g *GiftCard) Suspend(reason string, durationSeconds int64, at time.Time) error {
	if err := g.requireStatus("suspend", StatusActive); err != nil {
		return err
	}
	if durationSeconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSuspensionDuration, durationSeconds)
	}
	g.record(GiftCardSuspended{
		GiftCardID:      g.state.ID,
		Reason:          reason,
		DurationSeconds: durationSeconds,
		SuspendedAt:     NewTimestamp(at),
	})
	return nil
}

// Reactivate lifts a suspension and extends the expiry by the suspension duration.
func (g *GiftCard) Reactivate(reason string, at time.Time) error {
	if err := g.requireStatus("reactivate", StatusSuspended); err != nil {
		return err
	}
	if g.state.SuspensionDurationSeconds == nil {
		return ErrMissingSuspensionDuration
	}

	var expires *Timestamp
	if g.state.ExpiresAt != nil {
		pushed := NewTimestamp(g.state.ExpiresAt.Add(time.Duration(*g.state.SuspensionDurationSeconds) * time.Second))
		expires = &pushed
	}
	g.record(GiftCardReactivated{
		GiftCardID:    g.state.ID,
		Reason:        reason,
		ExpiresAt:     expires,
		ReactivatedAt: NewTimestamp(at),
	})
	return nil
}

// Cancel terminates an active or suspended card.
func (g *GiftCard) Cancel(reason string, at time.Time) error {
	if err := g.requireStatus("cancel", StatusActive, StatusSuspended); err != nil {
		return err
	}
	g.record(GiftCardCancelled{GiftCardID: g.state.ID, Reason: reason, CancelledAt: NewTimestamp(at)})
	return nil
}

// Expire marks an active card whose expiry has passed.
func (g *GiftCard) Expire(at time.Time) error {
	if err := g.requireStatus("expire", StatusActive); err != nil {
		return err
	}
	if g.state.ExpiresAt == nil {
		return ErrNoExpirationDate
	}
	ts := NewTimestamp(at)
	if !g.expiredAt(ts) {
		return fmt.Errorf("%w: expires at %s", ErrGiftCardNotExpired, g.state.ExpiresAt.Format(TimestampLayout))
	}
	g.record(GiftCardExpired{GiftCardID: g.state.ID, ExpiredAt: ts})
	return nil
}

// AdjustBalance applies a signed correction in the card currency.
func (g *GiftCard) AdjustBalance(delta int64, reason string, at time.Time) error {
	if err := g.requireStatus("adjust balance of", StatusActive); err != nil {
		return err
	}
	if delta == 0 {
		return fmt.Errorf("%w: adjustment delta must not be zero", ErrInvalidAmount)
	}
	if g.state.Balance.Amount+delta < 0 {
		return fmt.Errorf("%w: balance %s, delta %d", ErrNegativeBalance, g.state.Balance, delta)
	}

	ts := NewTimestamp(at)
	g.record(GiftCardBalanceAdjusted{
		GiftCardID: g.state.ID,
		Delta:      delta,
		Currency:   g.state.Balance.Currency,
		Reason:     reason,
		AdjustedAt: ts,
	})
	g.depleteIfEmpty(ts)
	return nil
}

// DecreaseBalance removes amount from the balance outside of a redemption.
func (g *GiftCard) DecreaseBalance(amount Money, reason string, at time.Time) error {
	if err := g.requireStatus("decrease balance of", StatusActive); err != nil {
		return err
	}
	if err := g.checkDebit(amount); err != nil {
		return err
	}
	if err := g.checkAvailable(amount); err != nil {
		return err
	}

	ts := NewTimestamp(at)
	g.record(GiftCardBalanceDecreased{
		GiftCardID:  g.state.ID,
		Amount:      amount,
		Reason:      reason,
		DecreasedAt: ts,
	})
	g.depleteIfEmpty(ts)
	return nil
}

func (g *GiftCard) record(e Event) {
	g.state = Apply(g.state, e)
	g.changes = append(g.changes, e)
}

func (g *GiftCard) depleteIfEmpty(at Timestamp) {
	if g.state.Balance.IsZero() {
		g.record(GiftCardDepleted{GiftCardID: g.state.ID, DepletedAt: at})
	}
}

func (g *GiftCard) requireStatus(op string, allowed ...Status) error {
	for _, s := range allowed {
		if g.state.Status == s {
			return nil
		}
	}
	return &InvalidStatusError{Op: op, Current: g.state.Status, Expected: allowed}
}

func (g *GiftCard) checkDebit(amount Money) error {
	if amount.Currency != g.state.Balance.Currency {
		return fmt.Errorf("%w: card holds %s, got %s", ErrCurrencyMismatch, g.state.Balance.Currency, amount.Currency)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	return nil
}

func (g *GiftCard) checkAvailable(amount Money) error {
	ok, err := g.state.Balance.IsGreaterThanOrEqual(amount)
	if err != nil {
		return err
	}
	if !ok {
		return &InsufficientBalanceError{Requested: amount, Available: g.state.Balance}
	}
	return nil
}

func (g *GiftCard) expiredAt(at Timestamp) bool {
	return g.state.ExpiresAt != nil && !g.state.ExpiresAt.After(at.Time)
}

func optionalTime(t *Timestamp) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}
