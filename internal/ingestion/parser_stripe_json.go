package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brainsait/reconciler/internal/currency"
	"github.com/brainsait/reconciler/internal/domain"
)

// stripeBalanceList is a page of Stripe balance transactions.
type stripeBalanceList struct {
	Object  string               `json:"object"`
	Data    []stripeBalanceEntry `json:"data"`
	HasMore bool                 `json:"has_more"`
	Payout  string               `json:"payout,omitempty"`
}

type stripeBalanceEntry struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Amount      int64             `json:"amount"`
	Fee         int64             `json:"fee"`
	Net         int64             `json:"net"`
	Currency    string            `json:"currency"`
	Created     int64             `json:"created"`
	AvailableOn int64             `json:"available_on"`
	Metadata    map[string]string `json:"metadata"`
}

// stripePaymentTypes are the balance-transaction types that settle a customer
// payment. Refunds, payouts, fees and adjustments move money the other way or
// against the account and are not reconciled against the ledger.
var stripePaymentTypes = map[string]bool{
	"charge":  true,
	"payment": true,
}

// ParseStripeJSON parses a Stripe balance-transaction list. Amounts are in
// minor units and the charge id (source) is the transaction id. Only payment
// entries are kept; each record is keyed on its balance-transaction id.
func ParseStripeJSON(data []byte, provider domain.Provider) ([]domain.TransactionRecord, string, error) {
	var file stripeBalanceList
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("unmarshal: %w", err)
	}

	records := make([]domain.TransactionRecord, 0, len(file.Data))
	for i, entry := range file.Data {
		if !stripePaymentTypes[entry.Type] {
			continue
		}
		if entry.ID == "" {
			return nil, "", fmt.Errorf("record %d: missing id", i)
		}

		code := strings.ToUpper(entry.Currency)
		amount, err := currency.FromMinor(entry.Amount, code)
		if err != nil {
			return nil, "", fmt.Errorf("record %d amount: %w", i, err)
		}
		fee, err := currency.FromMinor(entry.Fee, code)
		if err != nil {
			return nil, "", fmt.Errorf("record %d fee: %w", i, err)
		}
		if entry.Created == 0 {
			return nil, "", fmt.Errorf("record %d: missing created", i)
		}

		txnID := entry.Source
		if txnID == "" {
			txnID = entry.ID
		}

		meta := map[string]string{"balance_transaction": entry.ID, "type": entry.Type}
		for k, v := range entry.Metadata {
			if k != "order_id" {
				meta[k] = v
			}
		}

		rec := domain.TransactionRecord{
			ID:            recordID(provider, entry.ID),
			Provider:      provider,
			TransactionID: txnID,
			OrderID:       entry.Metadata["order_id"],
			Amount:        amount,
			Currency:      code,
			Status:        entry.Status,
			CreatedAt:     time.Unix(entry.Created, 0).UTC(),
			Fees:          &fee,
			Metadata:      meta,
		}
		if entry.Status == "available" && entry.AvailableOn > 0 {
			settled := time.Unix(entry.AvailableOn, 0).UTC()
			rec.SettledAt = &settled
		}
		records = append(records, rec)
	}

	return records, file.Payout, nil
}
