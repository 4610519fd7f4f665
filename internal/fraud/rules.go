package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
)

const (
	scoreVelocityCountHour     = 30
	scoreVelocityCountDay      = 20
	scoreVelocityAmountHour    = 25
	scoreVelocityAmountDay     = 15
	scoreHighAmount            = 20
	scoreSuspiciousAmount      = 10
	scoreRestrictedCountry     = 50
	scoreHighRiskRegion        = 15
	scoreNewCustomerHighAmount = 25
	scoreCardTesting           = 35
)

// evaluation is the input shared by all rule families for one attempt.
// history holds the customer's other transactions created at or before the
// attempt, newest first.
type evaluation struct {
	attempt domain.PaymentAttempt
	history []domain.TransactionRecord
	at      time.Time
}

func (ev *evaluation) indicator(typ string, sev domain.Severity, score int, format string, args ...any) domain.FraudIndicator {
	return domain.FraudIndicator{
		Type:        typ,
		Severity:    sev,
		Score:       score,
		Description: fmt.Sprintf(format, args...),
		DetectedAt:  ev.at,
	}
}

// trailing returns the count and sum of history entries created in
// (t-window, t].
func (ev *evaluation) trailing(window time.Duration) (int, decimal.Decimal) {
	t := ev.attempt.Transaction.CreatedAt
	from := t.Add(-window)

	count := 0
	sum := decimal.Zero
	for i := range ev.history {
		h := &ev.history[i]
		if !h.CreatedAt.After(from) {
			// newest first, so nothing older can fall inside the window
			break
		}
		count++
		sum = sum.Add(h.Amount)
	}
	return count, sum
}

func (e *Engine) velocityRules(_ context.Context, ev *evaluation) ([]domain.FraudIndicator, error) {
	var out []domain.FraudIndicator

	hourCount, hourSum := ev.trailing(time.Hour)
	dayCount, daySum := ev.trailing(24 * time.Hour)

	if hourCount > e.cfg.HourlyCountLimit {
		out = append(out, ev.indicator(domain.IndicatorVelocityCountHour, domain.SeverityHigh, scoreVelocityCountHour,
			"%d transactions in the last hour (limit %d)", hourCount, e.cfg.HourlyCountLimit))
	}
	if dayCount > e.cfg.DailyCountLimit {
		out = append(out, ev.indicator(domain.IndicatorVelocityCountDay, domain.SeverityMedium, scoreVelocityCountDay,
			"%d transactions in the last 24 hours (limit %d)", dayCount, e.cfg.DailyCountLimit))
	}
	if hourSum.GreaterThan(e.cfg.HourlyAmountLimit) {
		out = append(out, ev.indicator(domain.IndicatorVelocityAmountHour, domain.SeverityHigh, scoreVelocityAmountHour,
			"%s spent in the last hour (limit %s)", hourSum.StringFixed(2), e.cfg.HourlyAmountLimit))
	}
	if daySum.GreaterThan(e.cfg.DailyAmountLimit) {
		out = append(out, ev.indicator(domain.IndicatorVelocityAmountDay, domain.SeverityMedium, scoreVelocityAmountDay,
			"%s spent in the last 24 hours (limit %s)", daySum.StringFixed(2), e.cfg.DailyAmountLimit))
	}
	return out, nil
}

func (e *Engine) amountRules(_ context.Context, ev *evaluation) ([]domain.FraudIndicator, error) {
	var out []domain.FraudIndicator
	amount := ev.attempt.Transaction.Amount

	if amount.GreaterThan(e.cfg.HighAmount) {
		out = append(out, ev.indicator(domain.IndicatorHighAmount, domain.SeverityMedium, scoreHighAmount,
			"amount %s exceeds %s", amount.StringFixed(2), e.cfg.HighAmount))
	}
	for _, s := range e.cfg.SuspiciousAmounts {
		if amount.Equal(s) {
			out = append(out, ev.indicator(domain.IndicatorSuspiciousAmount, domain.SeverityLow, scoreSuspiciousAmount,
				"amount %s is a known probing value", amount.StringFixed(2)))
			break
		}
	}
	return out, nil
}

func (e *Engine) geographyRules(ctx context.Context, ev *evaluation) ([]domain.FraudIndicator, error) {
	country := normalizeCountry(ev.attempt.Country)
	if country == "" && ev.attempt.IPAddress != "" && e.geo != nil {
		resolved, err := e.geo.Country(ctx, ev.attempt.IPAddress)
		if err != nil {
			return nil, fmt.Errorf("resolve country: %w", err)
		}
		country = normalizeCountry(resolved)
	}
	if country == "" {
		return nil, nil
	}

	var out []domain.FraudIndicator
	if _, ok := e.restricted[country]; ok {
		out = append(out, ev.indicator(domain.IndicatorRestrictedCountry, domain.SeverityCritical, scoreRestrictedCountry,
			"payment originates from restricted country %s", country))
	}
	if _, ok := e.highRisk[country]; ok {
		out = append(out, ev.indicator(domain.IndicatorHighRiskRegion, domain.SeverityMedium, scoreHighRiskRegion,
			"payment originates from high-risk region %s", country))
	}
	return out, nil
}

// normalizeCountry puts a country code in the form the configured lists use.
func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (e *Engine) behaviorRules(_ context.Context, ev *evaluation) ([]domain.FraudIndicator, error) {
	var out []domain.FraudIndicator
	amount := ev.attempt.Transaction.Amount

	if len(ev.history) == 0 && amount.GreaterThan(e.cfg.NewCustomerAmount) {
		out = append(out, ev.indicator(domain.IndicatorNewCustomerHighAmount, domain.SeverityMedium, scoreNewCustomerHighAmount,
			"first transaction for customer is %s (limit %s)", amount.StringFixed(2), e.cfg.NewCustomerAmount))
	}

	recent := ev.history
	if len(recent) > e.cfg.CardTestingLookback {
		recent = recent[:e.cfg.CardTestingLookback]
	}
	small := 0
	for i := range recent {
		if recent[i].Amount.LessThan(e.cfg.CardTestingSmall) {
			small++
		}
	}
	if small >= e.cfg.CardTestingMinSmall {
		out = append(out, ev.indicator(domain.IndicatorCardTesting, domain.SeverityHigh, scoreCardTesting,
			"%d of the last %d transactions are below %s", small, len(recent), e.cfg.CardTestingSmall))
	}
	return out, nil
}
