package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCodes struct{}

func (fixedCodes) CardNumber() (string, error) { return "4000123412341234", nil }
func (fixedCodes) PIN() (string, error)        { return "1234", nil }

type failingCodes struct{}

func (failingCodes) CardNumber() (string, error) { return "", errors.New("entropy exhausted") }
func (failingCodes) PIN() (string, error)        { return "", errors.New("entropy exhausted") }

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func pln(amount int64) Money {
	return Money{Amount: amount, Currency: "PLN"}
}

func newActiveCard(t *testing.T, amount int64) *GiftCard {
	t.Helper()
	g, err := Create(uuid.New(), "tenant-1", pln(amount), t0, nil, fixedCodes{})
	require.NoError(t, err)
	require.NoError(t, g.Activate(t0.Add(time.Minute)))
	g.MarkCommitted()
	return g
}

func eventTypes(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

func TestCreateDefaultsExpiryToOneYear(t *testing.T) {
	id := uuid.New()
	g, err := Create(id, " tenant-1 ", pln(1000), t0, nil, fixedCodes{})
	require.NoError(t, err)

	s := g.Snapshot()
	assert.Equal(t, id, s.ID)
	assert.Equal(t, "tenant-1", s.TenantID)
	assert.Equal(t, StatusInactive, s.Status)
	assert.Equal(t, pln(1000), s.Balance)
	assert.Equal(t, pln(1000), s.InitialAmount)
	assert.Equal(t, "4000123412341234", s.CardNumber)
	assert.Equal(t, "1234", s.PIN)
	require.NotNil(t, s.ExpiresAt)
	assert.True(t, s.ExpiresAt.Equal(t0.AddDate(1, 0, 0)))
	assert.Equal(t, []string{GiftCardCreatedType}, eventTypes(g.Changes()))
	assert.Equal(t, int64(0), g.LoadedVersion())
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	past := t0.Add(-time.Hour)
	same := t0

	tests := []struct {
		name    string
		tenant  string
		amount  Money
		expires *time.Time
		codes   CodeGenerator
		wantErr error
	}{
		{"expiry in the past", "tenant-1", pln(1000), &past, fixedCodes{}, ErrInvalidExpiration},
		{"expiry equal to creation", "tenant-1", pln(1000), &same, fixedCodes{}, ErrInvalidExpiration},
		{"zero amount", "tenant-1", pln(0), nil, fixedCodes{}, ErrInvalidAmount},
		{"missing tenant", "  ", pln(1000), nil, fixedCodes{}, ErrMissingTenant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Create(uuid.New(), tt.tenant, tt.amount, t0, tt.expires, tt.codes)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, g)
		})
	}

	_, err := Create(uuid.New(), "tenant-1", pln(10), t0, nil, failingCodes{})
	require.Error(t, err)
}

func TestRedeemScenario(t *testing.T) {
	g := newActiveCard(t, 1000)

	require.NoError(t, g.Redeem(pln(400), t0.Add(time.Hour)))
	assert.Equal(t, []string{GiftCardRedeemedType}, eventTypes(g.Changes()))
	assert.Equal(t, pln(600), g.Balance())
	assert.Equal(t, StatusActive, g.Status())
	g.MarkCommitted()

	require.NoError(t, g.Redeem(pln(600), t0.Add(2*time.Hour)))
	assert.Equal(t, []string{GiftCardRedeemedType, GiftCardDepletedType}, eventTypes(g.Changes()))
	assert.Equal(t, pln(0), g.Balance())
	assert.Equal(t, StatusDepleted, g.Status())
	require.NotNil(t, g.Snapshot().DepletedAt)
}

func TestRedeemFailuresEmitNothing(t *testing.T) {
	g := newActiveCard(t, 1000)

	err := g.Redeem(pln(1001), t0.Add(time.Hour))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, pln(1001), insufficient.Requested)
	assert.Equal(t, pln(1000), insufficient.Available)

	require.ErrorIs(t, g.Redeem(Money{Amount: 10, Currency: "EUR"}, t0), ErrCurrencyMismatch)
	require.ErrorIs(t, g.Redeem(pln(0), t0), ErrInvalidAmount)
	require.ErrorIs(t, g.Redeem(pln(10), t0.AddDate(2, 0, 0)), ErrGiftCardExpired)

	assert.Empty(t, g.Changes())
	assert.Equal(t, pln(1000), g.Balance())
}

func TestIntentsRequireStatus(t *testing.T) {
	g, err := Create(uuid.New(), "tenant-1", pln(1000), t0, nil, fixedCodes{})
	require.NoError(t, err)
	g.MarkCommitted()

	err = g.Redeem(pln(10), t0)
	var statusErr *InvalidStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StatusInactive, statusErr.Current)
	assert.Equal(t, []Status{StatusActive}, statusErr.Expected)

	assert.ErrorIs(t, g.Suspend("fraud", 60, t0), ErrInvalidStatus)
	assert.ErrorIs(t, g.Reactivate("", t0), ErrInvalidStatus)
	assert.ErrorIs(t, g.Cancel("", t0), ErrInvalidStatus)
	assert.ErrorIs(t, g.Expire(t0.AddDate(2, 0, 0)), ErrInvalidStatus)
	assert.ErrorIs(t, g.AdjustBalance(10, "refund", t0), ErrInvalidStatus)
	assert.ErrorIs(t, g.DecreaseBalance(pln(10), "correction", t0), ErrInvalidStatus)
	assert.Empty(t, g.Changes())

	require.NoError(t, g.Activate(t0))
	assert.ErrorIs(t, g.Activate(t0), ErrInvalidStatus)
}

func TestActivateAfterExpiryFails(t *testing.T) {
	expires := t0.Add(time.Hour)
	g, err := Create(uuid.New(), "tenant-1", pln(1000), t0, &expires, fixedCodes{})
	require.NoError(t, err)
	g.MarkCommitted()

	require.ErrorIs(t, g.Activate(expires), ErrGiftCardExpired)
	assert.Empty(t, g.Changes())
}

func TestSuspendAndReactivatePushesExpiry(t *testing.T) {
	g := newActiveCard(t, 1000)
	before := *g.Snapshot().ExpiresAt

	require.ErrorIs(t, g.Suspend("fraud check", 0, t0), ErrInvalidSuspensionDuration)
	require.NoError(t, g.Suspend("fraud check", 86400, t0.Add(time.Hour)))
	s := g.Snapshot()
	assert.Equal(t, StatusSuspended, s.Status)
	require.NotNil(t, s.SuspendedAt)
	require.NotNil(t, s.SuspensionDurationSeconds)
	assert.Equal(t, int64(86400), *s.SuspensionDurationSeconds)

	require.NoError(t, g.Reactivate("cleared", t0.Add(2*time.Hour)))
	s = g.Snapshot()
	assert.Equal(t, StatusActive, s.Status)
	assert.Nil(t, s.SuspendedAt)
	assert.Nil(t, s.SuspensionDurationSeconds)
	require.NotNil(t, s.ExpiresAt)
	assert.True(t, s.ExpiresAt.Equal(before.Add(86400*time.Second)))
	assert.Equal(t, []string{GiftCardSuspendedType, GiftCardReactivatedType}, eventTypes(g.Changes()))
}

func TestReactivateWithoutDurationFails(t *testing.T) {
	id := uuid.New()
	g := Rehydrate([]Event{
		GiftCardCreated{GiftCardID: id, TenantID: "t", Amount: pln(10), CreatedAt: NewTimestamp(t0)},
		GiftCardActivated{GiftCardID: id, ActivatedAt: NewTimestamp(t0)},
	})
	// A suspension recorded without a duration can only come from a corrupted or legacy stream.
	g.state.Status = StatusSuspended

	require.ErrorIs(t, g.Reactivate("", t0), ErrMissingSuspensionDuration)
	assert.Empty(t, g.Changes())
}

func TestCancelFromActiveAndSuspended(t *testing.T) {
	g := newActiveCard(t, 1000)
	require.NoError(t, g.Cancel("customer request", t0.Add(time.Hour)))
	assert.Equal(t, StatusCancelled, g.Status())
	assert.NotNil(t, g.Snapshot().CancelledAt)

	g = newActiveCard(t, 1000)
	require.NoError(t, g.Suspend("review", 60, t0))
	require.NoError(t, g.Cancel("", t0.Add(time.Minute)))
	assert.Equal(t, StatusCancelled, g.Status())

	assert.ErrorIs(t, g.Cancel("", t0), ErrInvalidStatus)
}

func TestExpire(t *testing.T) {
	g := newActiveCard(t, 1000)
	require.ErrorIs(t, g.Expire(t0.Add(time.Hour)), ErrGiftCardNotExpired)

	expiry := *g.Snapshot().ExpiresAt
	require.NoError(t, g.Expire(expiry))
	assert.Equal(t, StatusExpired, g.Status())
	assert.True(t, g.Snapshot().ExpiredAt.Equal(expiry))

	id := uuid.New()
	noExpiry := Rehydrate([]Event{
		GiftCardCreated{GiftCardID: id, TenantID: "t", Amount: pln(10), CreatedAt: NewTimestamp(t0)},
		GiftCardActivated{GiftCardID: id, ActivatedAt: NewTimestamp(t0)},
	})
	require.ErrorIs(t, noExpiry.Expire(t0.AddDate(5, 0, 0)), ErrNoExpirationDate)
}

func TestAdjustBalance(t *testing.T) {
	g := newActiveCard(t, 1000)

	require.ErrorIs(t, g.AdjustBalance(0, "noop", t0), ErrInvalidAmount)
	require.ErrorIs(t, g.AdjustBalance(-1001, "too much", t0), ErrNegativeBalance)
	assert.Empty(t, g.Changes())

	require.NoError(t, g.AdjustBalance(250, "refund", t0))
	assert.Equal(t, pln(1250), g.Balance())
	require.NoError(t, g.AdjustBalance(-1250, "correction", t0))
	assert.Equal(t, StatusDepleted, g.Status())
	assert.Equal(t, []string{
		GiftCardBalanceAdjustedType,
		GiftCardBalanceAdjustedType,
		GiftCardDepletedType,
	}, eventTypes(g.Changes()))
}

func TestDecreaseBalance(t *testing.T) {
	g := newActiveCard(t, 1000)

	require.ErrorIs(t, g.DecreaseBalance(pln(1500), "correction", t0), ErrInsufficientBalance)
	require.ErrorIs(t, g.DecreaseBalance(Money{Amount: 1, Currency: "USD"}, "correction", t0), ErrCurrencyMismatch)
	assert.Empty(t, g.Changes())

	require.NoError(t, g.DecreaseBalance(pln(300), "correction", t0))
	assert.Equal(t, pln(700), g.Balance())
	assert.Equal(t, StatusActive, g.Status())

	require.NoError(t, g.DecreaseBalance(pln(700), "correction", t0))
	assert.Equal(t, StatusDepleted, g.Status())
}

func TestReplayIsDeterministic(t *testing.T) {
	g := newActiveCard(t, 1000)
	require.NoError(t, g.Redeem(pln(100), t0.Add(time.Hour)))
	require.NoError(t, g.Suspend("review", 3600, t0.Add(2*time.Hour)))
	require.NoError(t, g.Reactivate("ok", t0.Add(3*time.Hour)))
	require.NoError(t, g.AdjustBalance(-900, "correction", t0.Add(4*time.Hour)))

	id := g.ID()
	created, err := Create(id, "tenant-1", pln(1000), t0, nil, fixedCodes{})
	require.NoError(t, err)
	history := append(created.Changes(), GiftCardActivated{GiftCardID: id, ActivatedAt: NewTimestamp(t0.Add(time.Minute))})
	history = append(history, g.Changes()...)

	first := Replay(history)
	second := Replay(history)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(len(history)), first.Version)
	assert.Equal(t, StatusDepleted, first.Status)
	assert.Equal(t, g.Snapshot(), first)
}

func TestReplaySurvivesSerialization(t *testing.T) {
	g := newActiveCard(t, 1000)
	require.NoError(t, g.Redeem(pln(1), time.Date(2026, 3, 1, 11, 0, 0, 123456789, time.FixedZone("CET", 3600))))
	redeemed := g.Changes()[0].(GiftCardRedeemed)

	data, err := json.Marshal(redeemed)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"redeemed_at":"2026-03-01T10:00:00.123456+00:00"`)

	var decoded GiftCardRedeemed
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, redeemed, decoded)
}

func TestBalanceNeverNegative(t *testing.T) {
	g := newActiveCard(t, 50)
	ops := []func() error{
		func() error { return g.Redeem(pln(30), t0) },
		func() error { return g.Redeem(pln(30), t0) },
		func() error { return g.DecreaseBalance(pln(30), "x", t0) },
		func() error { return g.AdjustBalance(-30, "x", t0) },
		func() error { return g.AdjustBalance(-20, "x", t0) },
		func() error { return g.Redeem(pln(1), t0) },
	}
	for _, op := range ops {
		_ = op()
		assert.GreaterOrEqual(t, g.Balance().Amount, int64(0))
	}
	assert.Equal(t, StatusDepleted, g.Status())
}
