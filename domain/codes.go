package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	cardNumberLength = 16
	pinLength        = 4
)

// CodeGenerator produces the customer-facing card number and PIN.
type CodeGenerator interface {
	CardNumber() (string, error)
	PIN() (string, error)
}

// RandomCodes draws digits from crypto/rand. Card numbers end in a Luhn check digit.
type RandomCodes struct{}

func (RandomCodes) CardNumber() (string, error) {
	body, err := randomDigits(cardNumberLength - 1)
	if err != nil {
		return "", err
	}
	return body + string(rune('0'+luhnCheckDigit(body))), nil
}

func (RandomCodes) PIN() (string, error) {
	return randomDigits(pinLength)
}

// ValidCardNumber reports whether number is 16 digits with a valid Luhn checksum.
func ValidCardNumber(number string) bool {
	if len(number) != cardNumberLength {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	body := number[:len(number)-1]
	return int(number[len(number)-1]-'0') == luhnCheckDigit(body)
}

func randomDigits(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) int {
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}
