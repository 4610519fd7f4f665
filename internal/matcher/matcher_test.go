package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainsait/reconciler/internal/domain"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id, txID, orderID, amount string, at time.Time) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:            id,
		Provider:      domain.ProviderStripe,
		TransactionID: txID,
		OrderID:       orderID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "SAR",
		CreatedAt:     at,
	}
}

func TestTake_ExactIDWinsOverAmountTime(t *testing.T) {
	internal := rec("i1", "tx1", "O1", "150.00", base)
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("p-time", "other", "", "150.00", base.Add(time.Minute)),
		rec("p-id", "tx1", "", "152.00", base.Add(2*time.Hour)),
	})

	m, ok := pool.Take(internal)
	require.True(t, ok)
	assert.Equal(t, "p-id", m.Candidate.ID)
	assert.Equal(t, TierTransactionID, m.Tier)
	assert.Equal(t, 1, pool.Len())
}

func TestTake_OrderAmountTier(t *testing.T) {
	internal := rec("i1", "tx-internal", "O1", "99.50", base)
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("p1", "tx-prov", "O1", "99.51", base.Add(5*time.Hour)),
	})

	m, ok := pool.Take(internal)
	require.True(t, ok)
	assert.Equal(t, TierOrderAmount, m.Tier)
}

func TestTake_OrderWithAmountOutsideToleranceFallsThrough(t *testing.T) {
	internal := rec("i1", "tx-internal", "O1", "99.50", base)
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("p1", "tx-prov", "O1", "99.52", base.Add(5*time.Hour)),
	})

	_, ok := pool.Take(internal)
	assert.False(t, ok)
	assert.Equal(t, 1, pool.Len())
}

func TestTake_AmountTiersRequireSameCurrency(t *testing.T) {
	usd := func(r domain.TransactionRecord) domain.TransactionRecord {
		r.Currency = "USD"
		return r
	}
	tests := []struct {
		name      string
		internal  domain.TransactionRecord
		candidate domain.TransactionRecord
		wantOK    bool
		wantTier  Tier
	}{
		{"order tier, other currency", rec("i1", "tx-a", "O1", "99.50", base), usd(rec("p1", "tx-b", "O1", "99.50", base)), false, TierNone},
		{"amount time tier, other currency", rec("i1", "", "", "10.00", base), usd(rec("p1", "", "", "10.00", base)), false, TierNone},
		{"order tier, same currency", rec("i1", "tx-a", "O1", "99.50", base), rec("p1", "tx-b", "O1", "99.50", base), true, TierOrderAmount},
		{"currency case is ignored", rec("i1", "", "", "10.00", base), func() domain.TransactionRecord {
			r := rec("p1", "", "", "10.00", base)
			r.Currency = "sar"
			return r
		}(), true, TierAmountTime},
		{"transaction ID tier ignores currency", rec("i1", "tx1", "", "10.00", base), usd(rec("p1", "tx1", "", "10.00", base)), true, TierTransactionID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(DefaultConfig(), []domain.TransactionRecord{tt.candidate})
			m, ok := pool.Take(tt.internal)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantTier, m.Tier)
			}
		})
	}
}

func TestTake_AmountTimeWindowInclusive(t *testing.T) {
	internal := rec("i1", "", "", "10.00", base)
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("p-late", "", "", "10.00", base.Add(time.Hour+time.Second)),
		rec("p-edge", "", "", "10.00", base.Add(-time.Hour)),
	})

	m, ok := pool.Take(internal)
	require.True(t, ok)
	assert.Equal(t, "p-edge", m.Candidate.ID)
	assert.Equal(t, TierAmountTime, m.Tier)

	_, ok = pool.Take(internal)
	assert.False(t, ok, "candidate outside the window must not match")
}

func TestTake_EmptyTransactionIDNeverMatchesTierOne(t *testing.T) {
	internal := rec("i1", "", "", "10.00", base)
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("p1", "", "", "500.00", base),
	})

	_, ok := pool.Take(internal)
	assert.False(t, ok)
}

func TestTake_ConsumedCandidateIsNotReused(t *testing.T) {
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("p1", "tx1", "", "10.00", base),
	})

	_, ok := pool.Take(rec("i1", "tx1", "", "10.00", base))
	require.True(t, ok)

	_, ok = pool.Take(rec("i2", "tx1", "", "10.00", base))
	assert.False(t, ok)
	assert.Empty(t, pool.Remaining())
}

func TestTake_TieBreakClosestAmountThenClosestTime(t *testing.T) {
	internal := rec("i1", "", "", "100.00", base)
	candidates := []domain.TransactionRecord{
		rec("p-far-amount", "", "", "100.01", base),
		rec("p-far-time", "", "", "100.00", base.Add(30*time.Minute)),
		rec("p-best", "", "", "100.00", base.Add(-10*time.Minute)),
	}

	m, ok := NewPool(DefaultConfig(), candidates).Take(internal)
	require.True(t, ok)
	assert.Equal(t, "p-best", m.Candidate.ID)

	// Reversing the pool order must not change the winner.
	reversed := []domain.TransactionRecord{candidates[2], candidates[1], candidates[0]}
	m, ok = NewPool(DefaultConfig(), reversed).Take(internal)
	require.True(t, ok)
	assert.Equal(t, "p-best", m.Candidate.ID)
}

func TestTake_FullTieKeepsPoolOrder(t *testing.T) {
	internal := rec("i1", "", "O1", "20.00", base)
	pool := NewPool(DefaultConfig(), []domain.TransactionRecord{
		rec("first", "", "O1", "20.00", base),
		rec("second", "", "O1", "20.00", base),
	})

	m, ok := pool.Take(internal)
	require.True(t, ok)
	assert.Equal(t, "first", m.Candidate.ID)
}

func TestTake_DeterministicForFixedPool(t *testing.T) {
	candidates := []domain.TransactionRecord{
		rec("p1", "", "", "50.00", base.Add(20*time.Minute)),
		rec("p2", "", "", "50.01", base.Add(time.Minute)),
	}
	internal := rec("i1", "", "", "50.00", base)

	for i := 0; i < 5; i++ {
		m, ok := NewPool(DefaultConfig(), candidates).Take(internal)
		require.True(t, ok)
		assert.Equal(t, "p1", m.Candidate.ID)
	}
}

func TestNewPool_DoesNotAliasCallerSlice(t *testing.T) {
	candidates := []domain.TransactionRecord{
		rec("p1", "tx1", "", "10.00", base),
		rec("p2", "tx2", "", "10.00", base),
	}
	pool := NewPool(DefaultConfig(), candidates)

	_, ok := pool.Take(rec("i1", "tx1", "", "10.00", base))
	require.True(t, ok)

	assert.Equal(t, "p1", candidates[0].ID)
	assert.Equal(t, "p2", candidates[1].ID)
}
