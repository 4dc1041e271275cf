package models

import (
	"time"
)

// GiftCard is the denormalized read model row, written only by the projection
type GiftCard struct {
	GiftCardID         string     `gorm:"type:uuid;primaryKey" json:"gift_card_id"`
	TenantID           string     `gorm:"index;not null" json:"tenant_id"`
	CardNumber         string     `gorm:"uniqueIndex" json:"card_number"`
	PIN                string     `json:"-"`
	BalanceAmount      int64      `json:"balance_amount"`
	BalanceCurrency    string     `gorm:"size:3" json:"balance_currency"`
	InitialAmount      int64      `json:"initial_amount"`
	InitialCurrency    string     `gorm:"size:3" json:"initial_currency"`
	Status             string     `gorm:"index" json:"status"`
	CreatedAt          time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	ExpiresAt          *time.Time `gorm:"index" json:"expires_at"`
	ActivatedAt        *time.Time `json:"activated_at"`
	SuspendedAt        *time.Time `json:"suspended_at"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	ExpiredAt          *time.Time `json:"expired_at"`
	DepletedAt         *time.Time `json:"depleted_at"`
	SuspensionDuration *int64     `json:"suspension_duration"`
	Version            int64      `gorm:"not null" json:"version"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (GiftCard) TableName() string {
	return "gift_cards"
}

// All returns every table the service owns, in migration order.
func All() []any {
	return []any{&Event{}, &GiftCard{}}
}
