package ingestion

import (
	"io"
	"strings"

	"github.com/brainsait/reconciler/internal/currency"
	"github.com/brainsait/reconciler/internal/domain"
)

// ParseMadaCSV parses the acquirer's mada settlement CSV.
//
// Expected header:
//
//	terminal_id,merchant_id,rrn,auth_code,transaction_id,order_id,transaction_date,amount,fee,currency,status,batch_number
//
// Timestamps without an offset are Riyadh local time. Currency defaults to SAR
// when the column is blank.
func ParseMadaCSV(data []byte, provider domain.Provider) ([]domain.TransactionRecord, string, error) {
	table, err := newCSVTable(data, ',', "transaction_id", "transaction_date", "amount")
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

		txnID := row.get("transaction_id")
		if txnID == "" {
			return nil, "", row.errorf("missing transaction_id")
		}

		code := strings.ToUpper(row.get("currency"))
		if code == "" {
			code = currency.SAR
		}
		amount, err := currency.Parse(row.get("amount"), code)
		if err != nil {
			return nil, "", row.errorf("amount: %v", err)
		}
		createdAt, err := parseTimestamp(row.get("transaction_date"))
		if err != nil {
			return nil, "", row.errorf("date: %v", err)
		}

		rec := domain.TransactionRecord{
			ID:            recordID(provider, txnID),
			Provider:      provider,
			TransactionID: txnID,
			OrderID:       row.get("order_id"),
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

		meta := map[string]string{}
		for _, col := range []string{"terminal_id", "merchant_id", "rrn", "auth_code"} {
			if v := row.get(col); v != "" {
				meta[col] = v
			}
		}
		if len(meta) > 0 {
			rec.Metadata = meta
		}

		if b := row.get("batch_number"); b != "" {
			batchID = b
		}
		records = append(records, rec)
	}

	return records, batchID, nil
}
