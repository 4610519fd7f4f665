package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountTolerance is the largest difference still considered a match (one
// currency minor unit).
var AmountTolerance = decimal.New(1, -2)

type ReconciliationStatus string

const (
	ReconciliationMatched   ReconciliationStatus = "matched"
	ReconciliationUnmatched ReconciliationStatus = "unmatched"
	ReconciliationDisputed  ReconciliationStatus = "disputed"
	ReconciliationPending   ReconciliationStatus = "pending"
	ReconciliationFailed    ReconciliationStatus = "failed"
)

func (s ReconciliationStatus) Valid() bool {
	switch s {
	case ReconciliationMatched, ReconciliationUnmatched, ReconciliationDisputed,
		ReconciliationPending, ReconciliationFailed:
		return true
	}
	return false
}

// ReconciliationRecord is the outcome of matching one internal record against
// zero or one provider record, or of an orphaned provider record.
type ReconciliationRecord struct {
	ID               string               `json:"id"`
	Provider         Provider             `json:"provider"`
	TransactionID    string               `json:"transaction_id"`
	OrderID          string               `json:"order_id"`
	InternalRecordID string               `json:"internal_record_id,omitempty"`
	ProviderRecordID string               `json:"provider_record_id,omitempty"`
	Currency         string               `json:"currency"`
	InternalAmount   decimal.Decimal      `json:"internal_amount"`
	ProviderAmount   decimal.Decimal      `json:"provider_amount"`
	Difference       decimal.Decimal      `json:"difference"`
	Status           ReconciliationStatus `json:"status"`
	ReconciledAt     *time.Time           `json:"reconciled_at,omitempty"`
	DedupKey         string               `json:"-"`
	WindowKey        string               `json:"-"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// ReconciliationTotals is the aggregate computed over a set of records.
type ReconciliationTotals struct {
	TotalTransactions     int             `json:"total_transactions"`
	MatchedTransactions   int             `json:"matched_transactions"`
	UnmatchedTransactions int             `json:"unmatched_transactions"`
	DisputedTransactions  int             `json:"disputed_transactions"`
	TotalAmountInternal   decimal.Decimal `json:"total_amount_internal"`
	TotalAmountProvider   decimal.Decimal `json:"total_amount_provider"`
	TotalDifference       decimal.Decimal `json:"total_difference"`
	MatchRate             float64         `json:"match_rate"`
}

type ReconciliationSummary struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	ReconciliationTotals
	ByProvider map[Provider]ReconciliationTotals `json:"by_provider"`
}
