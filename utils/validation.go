package utils

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"example.com/backstage/services/giftcard/domain"
)

var (
	validate       *validator.Validate
	uuidPattern    = regexp.MustCompile("^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$")
	currencyFormat = regexp.MustCompile("^[A-Za-z]{3}$")
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	registerCustomValidations()
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(uuid string) bool {
	return uuidPattern.MatchString(uuid)
}

// IsValidCurrency checks for a three letter currency code in any case
func IsValidCurrency(code string) bool {
	return currencyFormat.MatchString(code)
}

func registerCustomValidations() {
	_ = validate.RegisterValidation("gift_card_id", func(fl validator.FieldLevel) bool {
		return IsValidUUID(fl.Field().String())
	})

	_ = validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return IsValidCurrency(fl.Field().String())
	})

	_ = validate.RegisterValidation("card_number", func(fl validator.FieldLevel) bool {
		return domain.ValidCardNumber(fl.Field().String())
	})
}
