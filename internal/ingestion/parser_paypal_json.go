package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/brainsait/reconciler/internal/currency"
	"github.com/brainsait/reconciler/internal/domain"
)

// paypalSearchResponse is the PayPal transaction search payload.
type paypalSearchResponse struct {
	AccountNumber      string              `json:"account_number"`
	TransactionDetails []paypalTransaction `json:"transaction_details"`
}

type paypalTransaction struct {
	TransactionInfo paypalTransactionInfo `json:"transaction_info"`
}

type paypalTransactionInfo struct {
	TransactionID     string       `json:"transaction_id"`
	InvoiceID         string       `json:"invoice_id"`
	EventCode         string       `json:"transaction_event_code"`
	InitiationDate    string       `json:"transaction_initiation_date"`
	UpdatedDate       string       `json:"transaction_updated_date"`
	TransactionAmount paypalMoney  `json:"transaction_amount"`
	FeeAmount         *paypalMoney `json:"fee_amount"`
	TransactionStatus string       `json:"transaction_status"`
}

type paypalMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

var paypalStatuses = map[string]string{
	"S": "completed",
	"P": "pending",
	"V": "reversed",
	"D": "denied",
	"F": "refunded",
}

// ParsePayPalJSON parses a PayPal transaction search response. invoice_id
// carries the order id.
func ParsePayPalJSON(data []byte, provider domain.Provider) ([]domain.TransactionRecord, string, error) {
	var file paypalSearchResponse
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("unmarshal: %w", err)
	}

	records := make([]domain.TransactionRecord, 0, len(file.TransactionDetails))
	for i, detail := range file.TransactionDetails {
		info := detail.TransactionInfo
		if info.TransactionID == "" {
			return nil, "", fmt.Errorf("record %d: missing transaction_id", i)
		}

		code := info.TransactionAmount.CurrencyCode
		amount, err := currency.Parse(info.TransactionAmount.Value, code)
		if err != nil {
			return nil, "", fmt.Errorf("record %d amount: %w", i, err)
		}
		createdAt, err := parseTimestamp(info.InitiationDate)
		if err != nil {
			return nil, "", fmt.Errorf("record %d date: %w", i, err)
		}

		status, ok := paypalStatuses[info.TransactionStatus]
		if !ok {
			status = info.TransactionStatus
		}

		rec := domain.TransactionRecord{
			ID:            recordID(provider, info.TransactionID),
			Provider:      provider,
			TransactionID: info.TransactionID,
			OrderID:       info.InvoiceID,
			Amount:        amount.Abs(),
			Currency:      code,
			Status:        status,
			CreatedAt:     createdAt,
		}
		if info.FeeAmount != nil && info.FeeAmount.Value != "" {
			fee, err := currency.Parse(info.FeeAmount.Value, code)
			if err != nil {
				return nil, "", fmt.Errorf("record %d fee: %w", i, err)
			}
			// PayPal reports fees as debits.
			fee = fee.Abs()
			rec.Fees = &fee
		}
		if status == "completed" && info.UpdatedDate != "" {
			if settled, err := parseTimestamp(info.UpdatedDate); err == nil {
				rec.SettledAt = &settled
			}
		}
		if info.EventCode != "" {
			rec.Metadata = map[string]string{"event_code": info.EventCode}
		}
		records = append(records, rec)
	}

	return records, file.AccountNumber, nil
}
