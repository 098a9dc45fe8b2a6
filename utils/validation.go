package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"example.com/backstage/services/provenance/domain"
)

var (
	validate     *validator.Validate
	registerOnce sync.Once
)

func init() {
	validate = validator.New()
	RegisterCustomValidations()
}

// ValidateStruct validates a command using its validation tags. Any failure
// is returned as domain.ErrValidationFailed naming the offending fields.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return domain.Validation("%s", err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, describe(fe))
	}
	return domain.Validation("%s", strings.Join(messages, "; "))
}

// ValidateID checks one identifier, such as a URL path segment, against the
// same rules command ids follow
func ValidateID(name, value string) error {
	if err := validate.Var(value, "required,max=64,ledger_id"); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			if fe.Tag() == "max" {
				return domain.Validation("%s exceeds %s characters", name, fe.Param())
			}
			if fe.Tag() == "required" {
				return domain.Validation("%s is required", name)
			}
		}
		return domain.Validation("%s must be printable ASCII without spaces", name)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "ledger_id", "principal":
		return fmt.Sprintf("%s must be printable ASCII without spaces", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// IsLedgerID reports whether s is a non-empty printable ASCII token
func IsLedgerID(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

// RegisterCustomValidations registers custom validation functions
func RegisterCustomValidations() {
	registerOnce.Do(func() {
		validate.RegisterValidation("ledger_id", func(fl validator.FieldLevel) bool {
			return IsLedgerID(fl.Field().String())
		})

		validate.RegisterValidation("principal", func(fl validator.FieldLevel) bool {
			return IsLedgerID(fl.Field().String())
		})
	})
}
