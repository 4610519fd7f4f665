package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/currency"
	"github.com/brainsait/reconciler/internal/domain"
)

var riyadh = time.FixedZone("AST", 3*60*60)

// Settlement file outcomes; the remainder settles cleanly.
const (
	missingRate  = 0.08
	mismatchRate = 0.04
	orphans      = 2
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Date range: 2026-03-01 to 2026-03-07.
	startDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	days := 7

	customers := make([]string, 25)
	for i := range customers {
		customers[i] = fmt.Sprintf("CUST-%03d", i+1)
	}

	type txnGroup struct {
		provider domain.Provider
		currency string
		prefix   string
		count    int
	}

	groups := []txnGroup{
		{domain.ProviderMada, currency.SAR, "MADA", 60},
		{domain.ProviderSTCPay, currency.SAR, "STC", 40},
		{domain.ProviderStripe, "USD", "ch_", 40},
	}

	var ledger []domain.TransactionRecord
	byProvider := make(map[domain.Provider][]domain.TransactionRecord)

	for _, g := range groups {
		for i := 1; i <= g.count; i++ {
			createdAt := startDate.Add(time.Duration(rng.Intn(days*24*60)) * time.Minute)

			// Amounts between 10 and 2000 in major units.
			amount := decimal.NewFromInt(int64(1000 + rng.Intn(199000))).Shift(-2)

			status := "captured"
			if rng.Float64() < 0.05 {
				status = "failed"
			}

			txnID := fmt.Sprintf("%s-%04d", g.prefix, i)
			if g.provider == domain.ProviderStripe {
				txnID = fmt.Sprintf("%s%06d", g.prefix, 100000+i)
			}

			rec := domain.TransactionRecord{
				ID:            fmt.Sprintf("BS-%s-%04d", strings.ToUpper(string(g.provider)), i),
				Provider:      g.provider,
				TransactionID: txnID,
				OrderID:       fmt.Sprintf("ORD-%s-%04d", strings.ToUpper(string(g.provider)), i),
				CustomerID:    customers[rng.Intn(len(customers))],
				Amount:        amount,
				Currency:      g.currency,
				Status:        status,
				CreatedAt:     createdAt,
			}
			ledger = append(ledger, rec)
			if status == "captured" {
				byProvider[g.provider] = append(byProvider[g.provider], rec)
			}
		}
	}

	writeJSONFile(filepath.Join(baseDir, "ledger.json"), ledger)
	fmt.Printf("Generated %d ledger entries -> ledger.json\n", len(ledger))

	generateMadaCSV(rng, byProvider[domain.ProviderMada], baseDir)
	generateSTCPayCSV(rng, byProvider[domain.ProviderSTCPay], baseDir)
	generateStripeJSON(rng, byProvider[domain.ProviderStripe], baseDir)

	fmt.Println("Test data generation complete.")
}

// settle decides what the provider reports for one captured entry. ok is false
// when the entry is missing from the file.
func settle(rng *rand.Rand, amount decimal.Decimal) (reported decimal.Decimal, ok bool) {
	roll := rng.Float64()
	switch {
	case roll > 1-missingRate:
		return decimal.Zero, false
	case roll > 1-missingRate-mismatchRate:
		// Off by 0.50 to 5.00.
		delta := decimal.NewFromInt(int64(50 + rng.Intn(451))).Shift(-2)
		return amount.Add(delta), true
	default:
		return amount, true
	}
}

func fee(amount decimal.Decimal, rate string) decimal.Decimal {
	return amount.Mul(decimal.RequireFromString(rate)).Round(2)
}

func generateMadaCSV(rng *rand.Rand, txns []domain.TransactionRecord, baseDir string) {
	filePath := filepath.Join(baseDir, "mada_settlement.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{
		"terminal_id", "merchant_id", "rrn", "auth_code", "transaction_id", "order_id",
		"transaction_date", "amount", "fee", "currency", "status", "batch_number",
	})

	count := 0
	for i, txn := range txns {
		amount, ok := settle(rng, txn.Amount)
		if !ok {
			continue
		}

		txnID, orderID := txn.TransactionID, txn.OrderID
		if i < orphans {
			txnID, orderID = fmt.Sprintf("MADA-ORPHAN-%02d", i+1), ""
		}

		w.Write([]string{
			fmt.Sprintf("T%03d", 1+rng.Intn(5)),
			"BRAINSAIT-001",
			fmt.Sprintf("4%011d", rng.Int63n(1e11)),
			fmt.Sprintf("%06X", rng.Intn(1<<24)),
			txnID,
			orderID,
			txn.CreatedAt.In(riyadh).Format("2006-01-02 15:04:05"),
			amount.StringFixed(2),
			fee(amount, "0.008").StringFixed(2),
			currency.SAR,
			"APPROVED",
			"MADA-B-001",
		})
		count++
	}

	fmt.Printf("Generated %d mada records -> mada_settlement.csv\n", count)
}

func generateSTCPayCSV(rng *rand.Rand, txns []domain.TransactionRecord, baseDir string) {
	filePath := filepath.Join(baseDir, "stcpay_settlement.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '|'
	defer w.Flush()

	w.Write([]string{
		"TransactionReference", "MerchantReference", "TransactionDate", "Amount", "Fee",
		"Currency", "Status", "SettlementDate", "BatchId",
	})

	count := 0
	for i, txn := range txns {
		amount, ok := settle(rng, txn.Amount)
		if !ok {
			continue
		}

		ref := txn.TransactionID
		if i < orphans {
			ref = fmt.Sprintf("STC-ORPHAN-%02d", i+1)
		}

		local := txn.CreatedAt.In(riyadh)
		w.Write([]string{
			ref,
			txn.OrderID,
			local.Format("2006-01-02 15:04:05"),
			amount.StringFixed(2),
			fee(amount, "0.01").StringFixed(2),
			currency.SAR,
			"Paid",
			local.AddDate(0, 0, 1).Format("2006-01-02"),
			"STC-B-001",
		})
		count++
	}

	fmt.Printf("Generated %d STC Pay records -> stcpay_settlement.csv\n", count)
}

func generateStripeJSON(rng *rand.Rand, txns []domain.TransactionRecord, baseDir string) {
	type entry struct {
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
		Metadata    map[string]string `json:"metadata,omitempty"`
	}

	type fileFormat struct {
		Object  string  `json:"object"`
		Payout  string  `json:"payout"`
		HasMore bool    `json:"has_more"`
		Data    []entry `json:"data"`
	}

	var data []entry
	for i, txn := range txns {
		amount, ok := settle(rng, txn.Amount)
		if !ok {
			continue
		}

		source := txn.TransactionID
		meta := map[string]string{"order_id": txn.OrderID}
		if i < orphans {
			source = fmt.Sprintf("ch_orphan%02d", i+1)
			meta = nil
		}

		gross := amount.Shift(2).IntPart()
		// 2.9% + 30 cents.
		stripeFee := fee(amount, "0.029").Shift(2).IntPart() + 30
		data = append(data, entry{
			ID:          fmt.Sprintf("txn_%06d", 500000+i),
			Source:      source,
			Type:        "charge",
			Status:      "available",
			Amount:      gross,
			Fee:         stripeFee,
			Net:         gross - stripeFee,
			Currency:    "usd",
			Created:     txn.CreatedAt.Unix(),
			AvailableOn: txn.CreatedAt.AddDate(0, 0, 2).Unix(),
			Metadata:    meta,
		})
	}

	writeJSONFile(filepath.Join(baseDir, "stripe_balance.json"), fileFormat{
		Object: "list",
		Payout: "po_brainsait_001",
		Data:   data,
	})
	fmt.Printf("Generated %d Stripe records -> stripe_balance.json\n", len(data))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
