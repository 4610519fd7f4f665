package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
)

// Summarize aggregates records into a summary. It is pure and can be
// recomputed at any time from the same records.
func Summarize(records []domain.ReconciliationRecord, start, end time.Time) domain.ReconciliationSummary {
	summary := domain.ReconciliationSummary{
		PeriodStart:          start.UTC(),
		PeriodEnd:            end.UTC(),
		ReconciliationTotals: computeTotals(records),
		ByProvider:           make(map[domain.Provider]domain.ReconciliationTotals),
	}

	for _, p := range domain.Providers {
		subset := filterByProvider(records, p)
		if len(subset) == 0 {
			continue
		}
		summary.ByProvider[p] = computeTotals(subset)
	}
	return summary
}

func computeTotals(records []domain.ReconciliationRecord) domain.ReconciliationTotals {
	t := domain.ReconciliationTotals{
		TotalAmountInternal: decimal.Zero,
		TotalAmountProvider: decimal.Zero,
		TotalDifference:     decimal.Zero,
	}

	for i := range records {
		r := &records[i]
		t.TotalTransactions++
		switch r.Status {
		case domain.ReconciliationMatched:
			t.MatchedTransactions++
		case domain.ReconciliationUnmatched:
			t.UnmatchedTransactions++
		case domain.ReconciliationDisputed:
			t.DisputedTransactions++
		}
		t.TotalAmountInternal = t.TotalAmountInternal.Add(r.InternalAmount)
		t.TotalAmountProvider = t.TotalAmountProvider.Add(r.ProviderAmount)
		t.TotalDifference = t.TotalDifference.Add(r.Difference)
	}

	t.MatchRate = matchRate(t.MatchedTransactions, t.TotalTransactions)
	return t
}

func matchRate(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(matched)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	return rate.InexactFloat64()
}

func filterByProvider(records []domain.ReconciliationRecord, p domain.Provider) []domain.ReconciliationRecord {
	var out []domain.ReconciliationRecord
	for _, r := range records {
		if r.Provider == p {
			out = append(out, r)
		}
	}
	return out
}
