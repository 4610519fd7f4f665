package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderMada     Provider = "mada"
	ProviderSTCPay   Provider = "stc_pay"
	ProviderPayPal   Provider = "paypal"
	ProviderApplePay Provider = "apple_pay"
)

// Providers lists every supported payment provider in a stable order.
var Providers = []Provider{
	ProviderStripe,
	ProviderMada,
	ProviderSTCPay,
	ProviderPayPal,
	ProviderApplePay,
}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// SaudiOnly reports whether the provider only settles in SAR.
func (p Provider) SaudiOnly() bool {
	return p == ProviderMada || p == ProviderSTCPay
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", s)}
	}
	return p, nil
}

// TransactionRecord is one observed payment event, either from the internal
// ledger or from a provider feed. Records are never mutated once fetched.
type TransactionRecord struct {
	ID            string            `json:"id" validate:"required"`
	Provider      Provider          `json:"provider" validate:"required"`
	TransactionID string            `json:"transaction_id"`
	OrderID       string            `json:"order_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency" validate:"required,len=3,uppercase"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
	Fees          *decimal.Decimal  `json:"fees,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
