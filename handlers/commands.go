package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/backstage/services/giftcard/utils"
)

// Command names used by the command envelope
const (
	CreateGiftCard     = "CreateGiftCard"
	ActivateGiftCard   = "ActivateGiftCard"
	RedeemGiftCard     = "RedeemGiftCard"
	SuspendGiftCard    = "SuspendGiftCard"
	ReactivateGiftCard = "ReactivateGiftCard"
	CancelGiftCard     = "CancelGiftCard"
	ExpireGiftCard     = "ExpireGiftCard"
	AdjustBalance      = "AdjustBalance"
	DecreaseBalance    = "DecreaseBalance"
)

// TenantScope is embedded by every command. The tenant always comes from the caller.
type TenantScope struct {
	TenantID string `json:"tenant_id" validate:"required,max=64"`
}

// SetTenant overrides the tenant carried in the payload.
func (t *TenantScope) SetTenant(id string) {
	t.TenantID = id
}

// Command structs

// CreateGiftCardCommand issues a card. CreatedAt backdates it, for example when
// importing cards issued elsewhere, and may not be in the future.
type CreateGiftCardCommand struct {
	TenantScope
	GiftCardID string     `json:"gift_card_id,omitempty" validate:"omitempty,gift_card_id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency" validate:"required,currency"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type ActivateGiftCardCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
}

type RedeemGiftCardCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency" validate:"required,currency"`
}

type SuspendGiftCardCommand struct {
	TenantScope
	GiftCardID      string `json:"gift_card_id" validate:"required,gift_card_id"`
	Reason          string `json:"reason" validate:"max=500"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type ReactivateGiftCardCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
	Reason     string `json:"reason" validate:"max=500"`
}

type CancelGiftCardCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
	Reason     string `json:"reason" validate:"max=500"`
}

type ExpireGiftCardCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
}

type AdjustBalanceCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
	Delta      int64  `json:"delta"`
	Reason     string `json:"reason" validate:"required,max=500"`
}

type DecreaseBalanceCommand struct {
	TenantScope
	GiftCardID string `json:"gift_card_id" validate:"required,gift_card_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency" validate:"required,currency"`
	Reason     string `json:"reason" validate:"required,max=500"`
}

// ErrValidation marks malformed command input.
var ErrValidation = errors.New("validation failed")

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

func validateCommand(cmd any) error {
	err := utils.ValidateStruct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalid("%v", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return &ValidationError{Problems: problems}
}
