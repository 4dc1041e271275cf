package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(1000, " pln ")
	require.NoError(t, err)
	assert.Equal(t, Money{Amount: 1000, Currency: "PLN"}, m)
	assert.Equal(t, "1000 PLN", m.String())

	_, err = NewMoney(-1, "PLN")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	for _, code := range []string{"", "PL", "PLNX", "P1N"} {
		_, err = NewMoney(1, code)
		assert.ErrorIs(t, err, ErrInvalidCurrency, code)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := pln(600)
	b := pln(400)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, pln(1000), sum)

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.Equal(t, pln(200), diff)

	_, err = b.Subtract(a)
	assert.ErrorIs(t, err, ErrNegativeBalance)

	ok, err := a.IsGreaterThanOrEqual(b)
	require.NoError(t, err)
	assert.True(t, ok)

	eur := Money{Amount: 1, Currency: "EUR"}
	_, err = a.Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = a.Subtract(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = a.IsGreaterThanOrEqual(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.True(t, a.Equal(pln(600)))
	assert.False(t, a.Equal(Money{Amount: 600, Currency: "EUR"}))
}

func TestValidCardNumber(t *testing.T) {
	codes := RandomCodes{}
	for i := 0; i < 20; i++ {
		number, err := codes.CardNumber()
		require.NoError(t, err)
		assert.Len(t, number, 16)
		assert.True(t, ValidCardNumber(number), number)
	}

	pin, err := codes.PIN()
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{4}$`, pin)

	assert.True(t, ValidCardNumber("4539578763621486"))
	assert.False(t, ValidCardNumber("4539578763621487"))
	assert.False(t, ValidCardNumber("453957876362148"))
	assert.False(t, ValidCardNumber("45395787636214a6"))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("ACTIVE")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, s)
	assert.False(t, s.IsTerminal())
	assert.True(t, StatusDepleted.IsTerminal())

	_, err = ParseStatus("active")
	assert.Error(t, err)
}
