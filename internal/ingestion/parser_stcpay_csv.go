package ingestion

import (
	"io"
	"strings"

	"github.com/brainsait/reconciler/internal/currency"
	"github.com/brainsait/reconciler/internal/domain"
)

// ParseSTCPayCSV parses the STC Pay pipe-delimited merchant settlement file.
//
// Expected header:
//
//	TransactionReference|MerchantReference|TransactionDate|Amount|Fee|Currency|Status|SettlementDate|BatchId
func ParseSTCPayCSV(data []byte, provider domain.Provider) ([]domain.TransactionRecord, string, error) {
	table, err := newCSVTable(data, '|', "transactionreference", "transactiondate", "amount")
	if err != nil {
		return nil, "", err
	}

	var records []domain.TransactionRecord
	var batchID string

	for {
		row, err := table.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}

		ref := row.get("transactionreference")
		if ref == "" {
			return nil, "", row.errorf("missing TransactionReference")
		}

		code := strings.ToUpper(row.get("currency"))
		if code == "" {
			code = currency.SAR
		}
		amount, err := currency.Parse(row.get("amount"), code)
		if err != nil {
			return nil, "", row.errorf("amount: %v", err)
		}
		createdAt, err := parseTimestamp(row.get("transactiondate"))
		if err != nil {
			return nil, "", row.errorf("date: %v", err)
		}

		rec := domain.TransactionRecord{
			ID:            recordID(provider, ref),
			Provider:      provider,
			TransactionID: ref,
			OrderID:       row.get("merchantreference"),
			Amount:        amount,
			Currency:      code,
			Status:        strings.ToLower(row.get("status")),
			CreatedAt:     createdAt,
		}
		if s := row.get("fee"); s != "" {
			fee, err := currency.Parse(s, code)
			if err != nil {
				return nil, "", row.errorf("fee: %v", err)
			}
			rec.Fees = &fee
		}
		if s := row.get("settlementdate"); s != "" {
			settled, err := parseTimestamp(s)
			if err != nil {
				return nil, "", row.errorf("settlement date: %v", err)
			}
			rec.SettledAt = &settled
		}

		if b := row.get("batchid"); b != "" {
			batchID = b
		}
		records = append(records, rec)
	}

	return records, batchID, nil
}
