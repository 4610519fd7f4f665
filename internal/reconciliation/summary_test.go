package reconciliation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainsait/reconciler/internal/domain"
)

func summaryRecord(p domain.Provider, status domain.ReconciliationStatus, internal, provider string) domain.ReconciliationRecord {
	in := decimal.RequireFromString(internal)
	out := decimal.RequireFromString(provider)
	return domain.ReconciliationRecord{
		Provider:       p,
		Status:         status,
		InternalAmount: in,
		ProviderAmount: out,
		Difference:     in.Sub(out).Abs(),
	}
}

func TestSummarize_EmptyHasZeroMatchRate(t *testing.T) {
	s := Summarize(nil, windowStart, windowEnd)
	assert.Zero(t, s.TotalTransactions)
	assert.Zero(t, s.MatchRate)
	assert.True(t, s.TotalAmountInternal.IsZero())
	assert.Empty(t, s.ByProvider)
}

func TestSummarize_Counts(t *testing.T) {
	records := []domain.ReconciliationRecord{
		summaryRecord(domain.ProviderMada, domain.ReconciliationMatched, "100.00", "100.00"),
		summaryRecord(domain.ProviderMada, domain.ReconciliationDisputed, "50.00", "52.00"),
		summaryRecord(domain.ProviderStripe, domain.ReconciliationUnmatched, "0", "20.00"),
		summaryRecord(domain.ProviderStripe, domain.ReconciliationMatched, "10.00", "10.01"),
	}

	s := Summarize(records, windowStart, windowEnd)
	assert.Equal(t, 4, s.TotalTransactions)
	assert.Equal(t, 2, s.MatchedTransactions)
	assert.Equal(t, 1, s.DisputedTransactions)
	assert.Equal(t, 1, s.UnmatchedTransactions)
	assert.Equal(t, 50.0, s.MatchRate)
	assert.True(t, s.TotalAmountInternal.Equal(decimal.RequireFromString("160.00")))
	assert.True(t, s.TotalAmountProvider.Equal(decimal.RequireFromString("182.01")))
	assert.True(t, s.TotalDifference.Equal(decimal.RequireFromString("22.01")))

	require.Contains(t, s.ByProvider, domain.ProviderMada)
	mada := s.ByProvider[domain.ProviderMada]
	assert.Equal(t, 2, mada.TotalTransactions)
	assert.Equal(t, 50.0, mada.MatchRate)
	assert.NotContains(t, s.ByProvider, domain.ProviderPayPal)
}

func TestSummarize_ProviderBreakdownSumsToTotal(t *testing.T) {
	records := []domain.ReconciliationRecord{
		summaryRecord(domain.ProviderMada, domain.ReconciliationMatched, "100.00", "100.00"),
		summaryRecord(domain.ProviderSTCPay, domain.ReconciliationDisputed, "33.33", "30.00"),
		summaryRecord(domain.ProviderPayPal, domain.ReconciliationUnmatched, "19.99", "0"),
		summaryRecord(domain.ProviderApplePay, domain.ReconciliationMatched, "7.50", "7.50"),
		summaryRecord(domain.ProviderStripe, domain.ReconciliationUnmatched, "0", "5.00"),
	}

	s := Summarize(records, windowStart, windowEnd)

	internal, provider, diff := decimal.Zero, decimal.Zero, decimal.Zero
	count := 0
	for _, totals := range s.ByProvider {
		internal = internal.Add(totals.TotalAmountInternal)
		provider = provider.Add(totals.TotalAmountProvider)
		diff = diff.Add(totals.TotalDifference)
		count += totals.TotalTransactions
	}
	assert.True(t, internal.Equal(s.TotalAmountInternal))
	assert.True(t, provider.Equal(s.TotalAmountProvider))
	assert.True(t, diff.Equal(s.TotalDifference))
	assert.Equal(t, s.TotalTransactions, count)
}

func TestMatchRate_RoundsToTwoPlaces(t *testing.T) {
	assert.Equal(t, 66.67, matchRate(2, 3))
	assert.Equal(t, 100.0, matchRate(7, 7))
	assert.Equal(t, 0.0, matchRate(0, 0))
}
