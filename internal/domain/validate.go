package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/brainsait/reconciler/internal/currency"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateTransaction checks a record before it enters matching or scoring.
func ValidateTransaction(tx *TransactionRecord) error {
	if err := validate.Struct(tx); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &ValidationError{Reason: err.Error()}
	}

	if !tx.Provider.Valid() {
		return &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", tx.Provider)}
	}
	if tx.CreatedAt.IsZero() {
		return &ValidationError{Field: "created_at", Reason: "is required"}
	}
	if tx.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if tx.Fees != nil && tx.Fees.IsNegative() {
		return &ValidationError{Field: "fees", Reason: "must not be negative"}
	}
	if !currency.Known(tx.Currency) {
		return &ValidationError{Field: "currency", Reason: fmt.Sprintf("unknown currency %q", tx.Currency)}
	}
	if tx.Provider.SaudiOnly() && tx.Currency != currency.SAR {
		return &ValidationError{
			Field:  "currency",
			Reason: fmt.Sprintf("%s only settles in %s, got %s", tx.Provider, currency.SAR, tx.Currency),
		}
	}
	return nil
}
