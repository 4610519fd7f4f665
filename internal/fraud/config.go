package fraud

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
)

// Config is the rule-threshold table. Engines copy it on construction, so a
// Config may be edited after it has been handed to NewEngine without affecting
// that engine.
type Config struct {
	HourlyCountLimit  int
	DailyCountLimit   int
	HourlyAmountLimit decimal.Decimal
	DailyAmountLimit  decimal.Decimal

	HighAmount        decimal.Decimal
	SuspiciousAmounts []decimal.Decimal

	NewCustomerAmount   decimal.Decimal
	CardTestingLookback int
	CardTestingMinSmall int
	CardTestingSmall    decimal.Decimal

	RestrictedCountries []string
	HighRiskRegions     []string

	// HistoryLookback bounds the customer history fetched by Service.
	HistoryLookback time.Duration
}

func DefaultConfig() Config {
	return Config{
		HourlyCountLimit:  10,
		DailyCountLimit:   50,
		HourlyAmountLimit: decimal.NewFromInt(5000),
		DailyAmountLimit:  decimal.NewFromInt(20000),

		HighAmount: decimal.NewFromInt(10000),
		SuspiciousAmounts: []decimal.Decimal{
			decimal.RequireFromString("9999.99"),
			decimal.RequireFromString("999.99"),
			decimal.RequireFromString("99.99"),
		},

		NewCustomerAmount:   decimal.NewFromInt(1000),
		CardTestingLookback: 10,
		CardTestingMinSmall: 5,
		CardTestingSmall:    decimal.NewFromInt(50),

		RestrictedCountries: []string{"KP", "IR", "SY", "CU"},
		HighRiskRegions:     []string{"AF", "MM", "YE", "SS"},

		HistoryLookback: 30 * 24 * time.Hour,
	}
}

func (c Config) clone() Config {
	out := c
	out.SuspiciousAmounts = append([]decimal.Decimal(nil), c.SuspiciousAmounts...)
	out.RestrictedCountries = append([]string(nil), c.RestrictedCountries...)
	out.HighRiskRegions = append([]string(nil), c.HighRiskRegions...)
	return out
}

// Classify maps a capped risk score to its level and recommended action.
func Classify(score int) (domain.RiskLevel, domain.RecommendedAction) {
	switch {
	case score >= 80:
		return domain.RiskCritical, domain.ActionBlockTransaction
	case score >= 60:
		return domain.RiskHigh, domain.ActionManualReview
	case score >= 30:
		return domain.RiskMedium, domain.ActionAdditionalVerification
	default:
		return domain.RiskLow, domain.ActionApprove
	}
}

func countrySet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
