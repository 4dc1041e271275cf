package domain

import (
	"github.com/google/uuid"
)

// Event type names as persisted in the event store.
const (
	GiftCardCreatedType          = "V1_GIFT_CARD_CREATED"
	GiftCardActivatedType        = "V1_GIFT_CARD_ACTIVATED"
	GiftCardRedeemedType         = "V1_GIFT_CARD_REDEEMED"
	GiftCardDepletedType         = "V1_GIFT_CARD_DEPLETED"
	GiftCardSuspendedType        = "V1_GIFT_CARD_SUSPENDED"
	GiftCardReactivatedType      = "V1_GIFT_CARD_REACTIVATED"
	GiftCardCancelledType        = "V1_GIFT_CARD_CANCELLED"
	GiftCardExpiredType          = "V1_GIFT_CARD_EXPIRED"
	GiftCardBalanceAdjustedType  = "V1_GIFT_CARD_BALANCE_ADJUSTED"
	GiftCardBalanceDecreasedType = "V1_GIFT_CARD_BALANCE_DECREASED"
)

// Event is a gift card domain event. The set of implementations is closed.
type Event interface {
	EventType() string
	GiftCard() uuid.UUID
	OccurredOn() Timestamp
	isEvent()
}

// GiftCardCreated opens the stream.
type GiftCardCreated struct {
	GiftCardID uuid.UUID  `json:"gift_card_id"`
	TenantID   string     `json:"tenant_id"`
	Amount     Money      `json:"amount"`
	CardNumber string     `json:"card_number"`
	PIN        string     `json:"pin"`
	ExpiresAt  *Timestamp `json:"expires_at,omitempty"`
	CreatedAt  Timestamp  `json:"created_at"`
}

type GiftCardActivated struct {
	GiftCardID  uuid.UUID `json:"gift_card_id"`
	ActivatedAt Timestamp `json:"activated_at"`
}

type GiftCardRedeemed struct {
	GiftCardID uuid.UUID `json:"gift_card_id"`
	Amount     Money     `json:"amount"`
	RedeemedAt Timestamp `json:"redeemed_at"`
}

// GiftCardDepleted always follows the event that brought the balance to zero.
type GiftCardDepleted struct {
	GiftCardID uuid.UUID `json:"gift_card_id"`
	DepletedAt Timestamp `json:"depleted_at"`
}

type GiftCardSuspended struct {
	GiftCardID      uuid.UUID `json:"gift_card_id"`
	Reason          string    `json:"reason"`
	DurationSeconds int64     `json:"duration_seconds"`
	SuspendedAt     Timestamp `json:"suspended_at"`
}

// GiftCardReactivated carries the expiry after it was pushed by the suspension duration.
type GiftCardReactivated struct {
	GiftCardID    uuid.UUID  `json:"gift_card_id"`
	Reason        string     `json:"reason,omitempty"`
	ExpiresAt     *Timestamp `json:"expires_at,omitempty"`
	ReactivatedAt Timestamp  `json:"reactivated_at"`
}

type GiftCardCancelled struct {
	GiftCardID  uuid.UUID `json:"gift_card_id"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt Timestamp `json:"cancelled_at"`
}

type GiftCardExpired struct {
	GiftCardID uuid.UUID `json:"gift_card_id"`
	ExpiredAt  Timestamp `json:"expired_at"`
}

// GiftCardBalanceAdjusted carries a signed delta in the card currency.
type GiftCardBalanceAdjusted struct {
	GiftCardID uuid.UUID `json:"gift_card_id"`
	Delta      int64     `json:"delta"`
	Currency   string    `json:"currency"`
	Reason     string    `json:"reason"`
	AdjustedAt Timestamp `json:"adjusted_at"`
}

type GiftCardBalanceDecreased struct {
	GiftCardID  uuid.UUID `json:"gift_card_id"`
	Amount      Money     `json:"amount"`
	Reason      string    `json:"reason"`
	DecreasedAt Timestamp `json:"decreased_at"`
}

func (GiftCardCreated) EventType() string          { return GiftCardCreatedType }
func (GiftCardActivated) EventType() string        { return GiftCardActivatedType }
func (GiftCardRedeemed) EventType() string         { return GiftCardRedeemedType }
func (GiftCardDepleted) EventType() string         { return GiftCardDepletedType }
func (GiftCardSuspended) EventType() string        { return GiftCardSuspendedType }
func (GiftCardReactivated) EventType() string      { return GiftCardReactivatedType }
func (GiftCardCancelled) EventType() string        { return GiftCardCancelledType }
func (GiftCardExpired) EventType() string          { return GiftCardExpiredType }
func (GiftCardBalanceAdjusted) EventType() string  { return GiftCardBalanceAdjustedType }
func (GiftCardBalanceDecreased) EventType() string { return GiftCardBalanceDecreasedType }

func (e GiftCardCreated) GiftCard() uuid.UUID          { return e.GiftCardID }
func (e GiftCardActivated) GiftCard() uuid.UUID        { return e.GiftCardID }
func (e GiftCardRedeemed) GiftCard() uuid.UUID         { return e.GiftCardID }
func (e GiftCardDepleted) GiftCard() uuid.UUID         { return e.GiftCardID }
func (e GiftCardSuspended) GiftCard() uuid.UUID        { return e.GiftCardID }
func (e GiftCardReactivated) GiftCard() uuid.UUID      { return e.GiftCardID }
func (e GiftCardCancelled) GiftCard() uuid.UUID        { return e.GiftCardID }
func (e GiftCardExpired) GiftCard() uuid.UUID          { return e.GiftCardID }
func (e GiftCardBalanceAdjusted) GiftCard() uuid.UUID  { return e.GiftCardID }
func (e GiftCardBalanceDecreased) GiftCard() uuid.UUID { return e.GiftCardID }

func (e GiftCardCreated) OccurredOn() Timestamp          { return e.CreatedAt }
func (e GiftCardActivated) OccurredOn() Timestamp        { return e.ActivatedAt }
func (e GiftCardRedeemed) OccurredOn() Timestamp         { return e.RedeemedAt }
func (e GiftCardDepleted) OccurredOn() Timestamp         { return e.DepletedAt }
func (e GiftCardSuspended) OccurredOn() Timestamp        { return e.SuspendedAt }
func (e GiftCardReactivated) OccurredOn() Timestamp      { return e.ReactivatedAt }
func (e GiftCardCancelled) OccurredOn() Timestamp        { return e.CancelledAt }
func (e GiftCardExpired) OccurredOn() Timestamp          { return e.ExpiredAt }
func (e GiftCardBalanceAdjusted) OccurredOn() Timestamp  { return e.AdjustedAt }
func (e GiftCardBalanceDecreased) OccurredOn() Timestamp { return e.DecreasedAt }

func (GiftCardCreated) isEvent()          {}
func (GiftCardActivated) isEvent()        {}
func (GiftCardRedeemed) isEvent()         {}
func (GiftCardDepleted) isEvent()         {}
func (GiftCardSuspended) isEvent()        {}
func (GiftCardReactivated) isEvent()      {}
func (GiftCardCancelled) isEvent()        {}
func (GiftCardExpired) isEvent()          {}
func (GiftCardBalanceAdjusted) isEvent()  {}
func (GiftCardBalanceDecreased) isEvent() {}
