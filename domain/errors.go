package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrGiftCardNotFound          = errors.New("gift card not found")
	ErrGiftCardAlreadyExists     = errors.New("gift card already exists")
	ErrInvalidStatus             = errors.New("invalid gift card status")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidCurrency           = errors.New("invalid currency")
	ErrCurrencyMismatch          = errors.New("currency mismatch")
	ErrNegativeBalance           = errors.New("balance cannot become negative")
	ErrInvalidExpiration         = errors.New("expiration date must be after creation date")
	ErrGiftCardExpired           = errors.New("gift card has expired")
	ErrGiftCardNotExpired        = errors.New("gift card has not reached its expiration date")
	ErrNoExpirationDate          = errors.New("gift card has no expiration date")
	ErrMissingSuspensionDuration = errors.New("gift card has no suspension duration")
	ErrInvalidSuspensionDuration = errors.New("suspension duration must be positive")
	ErrMissingTenant             = errors.New("tenant id is required")
)

// InvalidStatusError is returned when an intent is not allowed from the current status.
type InvalidStatusError struct {
	Op       string
	Current  Status
	Expected []Status
}

func (e *InvalidStatusError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		expected[i] = string(s)
	}
	return fmt.Sprintf("cannot %s gift card in status %s (expected %s)", e.Op, e.Current, strings.Join(expected, " or "))
}

func (e *InvalidStatusError) Unwrap() error {
	return ErrInvalidStatus
}

// InsufficientBalanceError carries the requested and available amounts.
type InsufficientBalanceError struct {
	Requested Money
	Available Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s", e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// NotFoundError identifies the missing gift card.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gift card %s not found", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrGiftCardNotFound
}
