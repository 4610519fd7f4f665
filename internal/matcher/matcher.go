// Package matcher pairs internal ledger entries with provider-reported
// entries.
//
// Tiers are tried in order and the first tier with a hit wins:
//
//  1. identical transaction ID
//  2. identical order ID and amount within tolerance
//  3. amount within tolerance and createdAt within the time window
//
// Tiers 2 and 3 compare amounts, so they also require the same currency.
//
// When several candidates satisfy the same tier, the one with the smallest
// amount difference wins, then the smallest createdAt distance, then the
// earliest position in the pool.
package matcher

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
)

// DefaultTimeWindow is the createdAt distance allowed by the
// amount+time-window tier.
const DefaultTimeWindow = time.Hour

type Tier int

const (
	TierNone Tier = iota
	TierTransactionID
	TierOrderAmount
	TierAmountTime
)

func (t Tier) String() string {
	switch t {
	case TierTransactionID:
		return "transaction_id"
	case TierOrderAmount:
		return "order_amount"
	case TierAmountTime:
		return "amount_time"
	default:
		return "none"
	}
}

type Config struct {
	AmountTolerance decimal.Decimal
	TimeWindow      time.Duration
}

func DefaultConfig() Config {
	return Config{
		AmountTolerance: domain.AmountTolerance,
		TimeWindow:      DefaultTimeWindow,
	}
}

type Match struct {
	Candidate domain.TransactionRecord
	Tier      Tier
}

// Pool owns the provider records still available for matching. A record
// returned by Take is removed and is never handed out again.
type Pool struct {
	cfg        Config
	candidates []domain.TransactionRecord
}

// NewPool copies the candidates so the caller's slice is never aliased.
func NewPool(cfg Config, candidates []domain.TransactionRecord) *Pool {
	owned := make([]domain.TransactionRecord, len(candidates))
	copy(owned, candidates)
	return &Pool{cfg: cfg, candidates: owned}
}

func (p *Pool) Len() int { return len(p.candidates) }

// Remaining returns a copy of the unconsumed candidates in pool order.
func (p *Pool) Remaining() []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// Take finds the best counterpart for internal and removes it from the pool.
// ok is false when no tier matches.
func (p *Pool) Take(internal domain.TransactionRecord) (Match, bool) {
	for _, tier := range []Tier{TierTransactionID, TierOrderAmount, TierAmountTime} {
		idx := p.best(internal, tier)
		if idx < 0 {
			continue
		}
		m := Match{Candidate: p.candidates[idx], Tier: tier}
		p.candidates = append(p.candidates[:idx], p.candidates[idx+1:]...)
		return m, true
	}
	return Match{}, false
}

func (p *Pool) best(internal domain.TransactionRecord, tier Tier) int {
	bestIdx := -1
	var bestAmount decimal.Decimal
	var bestDistance time.Duration

	for i := range p.candidates {
		c := &p.candidates[i]
		if !p.satisfies(internal, c, tier) {
			continue
		}
		amountDiff := internal.Amount.Sub(c.Amount).Abs()
		distance := absDuration(c.CreatedAt.Sub(internal.CreatedAt))

		if bestIdx < 0 ||
			amountDiff.LessThan(bestAmount) ||
			(amountDiff.Equal(bestAmount) && distance < bestDistance) {
			bestIdx, bestAmount, bestDistance = i, amountDiff, distance
		}
	}
	return bestIdx
}

func (p *Pool) satisfies(internal domain.TransactionRecord, c *domain.TransactionRecord, tier Tier) bool {
	switch tier {
	case TierTransactionID:
		return internal.TransactionID != "" && c.TransactionID == internal.TransactionID
	case TierOrderAmount:
		return internal.OrderID != "" && c.OrderID == internal.OrderID &&
			sameCurrency(internal, c) && p.withinTolerance(internal, c)
	case TierAmountTime:
		return sameCurrency(internal, c) && p.withinTolerance(internal, c) &&
			absDuration(c.CreatedAt.Sub(internal.CreatedAt)) <= p.cfg.TimeWindow
	}
	return false
}

func sameCurrency(internal domain.TransactionRecord, c *domain.TransactionRecord) bool {
	return strings.EqualFold(internal.Currency, c.Currency)
}

func (p *Pool) withinTolerance(internal domain.TransactionRecord, c *domain.TransactionRecord) bool {
	return internal.Amount.Sub(c.Amount).Abs().LessThanOrEqual(p.cfg.AmountTolerance)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
