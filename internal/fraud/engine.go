// Package fraud scores payment attempts for fraud risk. Four independent rule
// families (velocity, amount, geography, behavior) each emit zero or more
// indicators; their scores add up and the total is capped at 100. A family
// that fails is skipped with a warning and never aborts the analysis.
package fraud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/metrics"
)

const maxRiskScore = 100

const (
	FamilyVelocity  = "velocity"
	FamilyAmount    = "amount"
	FamilyGeography = "geography"
	FamilyBehavior  = "behavior"
)

type ruleFamily struct {
	name string
	eval func(context.Context, *evaluation) ([]domain.FraudIndicator, error)
}

// Engine evaluates the rule families against one attempt. It holds no state
// beyond its frozen Config and is safe for concurrent use.
type Engine struct {
	cfg        Config
	restricted map[string]struct{}
	highRisk   map[string]struct{}
	geo        GeoResolver
	families   []ruleFamily
	now        func() time.Time
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

type EngineOption func(*Engine)

func WithGeoResolver(g GeoResolver) EngineOption {
	return func(e *Engine) { e.geo = g }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithEngineLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log.With().Str("component", "fraud").Logger() }
}

func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	cfg = cfg.clone()
	e := &Engine{
		cfg:        cfg,
		restricted: countrySet(cfg.RestrictedCountries),
		highRisk:   countrySet(cfg.HighRiskRegions),
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	e.families = []ruleFamily{
		{FamilyVelocity, e.velocityRules},
		{FamilyAmount, e.amountRules},
		{FamilyGeography, e.geographyRules},
		{FamilyBehavior, e.behaviorRules},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a copy of the engine's thresholds.
func (e *Engine) Config() Config { return e.cfg.clone() }

// Analyze scores attempt against the customer's history. Only malformed input
// returns an error; rule failures surface as warnings on the analysis.
func (e *Engine) Analyze(ctx context.Context, attempt domain.PaymentAttempt, history []domain.TransactionRecord) (*domain.FraudAnalysis, error) {
	return e.analyze(ctx, attempt, history, nil)
}

// analyze runs every family not listed in skipped. A skipped family is
// reported with its reason as a warning.
func (e *Engine) analyze(ctx context.Context, attempt domain.PaymentAttempt, history []domain.TransactionRecord, skipped map[string]error) (*domain.FraudAnalysis, error) {
	if err := domain.ValidateTransaction(&attempt.Transaction); err != nil {
		return nil, err
	}
	if attempt.CustomerID == "" {
		attempt.CustomerID = attempt.Transaction.CustomerID
	}

	ev := &evaluation{
		attempt: attempt,
		history: priorHistory(attempt.Transaction, history),
		at:      e.now().UTC(),
	}

	analysis := &domain.FraudAnalysis{
		TransactionID: attempt.Transaction.TransactionID,
		Indicators:    []domain.FraudIndicator{},
		AnalyzedAt:    ev.at,
	}
	if analysis.TransactionID == "" {
		analysis.TransactionID = attempt.Transaction.ID
	}

	total := 0
	for _, f := range e.families {
		if reason, ok := skipped[f.name]; ok {
			e.skip(analysis, f.name, reason)
			continue
		}
		indicators, err := e.runFamily(ctx, f, ev)
		if err != nil {
			e.skip(analysis, f.name, err)
			continue
		}
		for _, ind := range indicators {
			total += ind.Score
		}
		analysis.Indicators = append(analysis.Indicators, indicators...)
	}

	analysis.RiskScore = min(total, maxRiskScore)
	analysis.RiskLevel, analysis.RecommendedAction = Classify(analysis.RiskScore)
	e.metrics.CountFraudAnalysis(string(analysis.RiskLevel))

	e.log.Debug().
		Str("transaction_id", analysis.TransactionID).
		Int("raw_score", total).
		Int("risk_score", analysis.RiskScore).
		Str("risk_level", string(analysis.RiskLevel)).
		Int("indicators", len(analysis.Indicators)).
		Msg("analysis complete")

	return analysis, nil
}

func (e *Engine) runFamily(ctx context.Context, f ruleFamily, ev *evaluation) (indicators []domain.FraudIndicator, err error) {
	defer func() {
		if r := recover(); r != nil {
			indicators = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.eval(ctx, ev)
}

func (e *Engine) skip(analysis *domain.FraudAnalysis, family string, reason error) {
	err := &domain.RuleEvaluationError{Family: family, Err: reason}
	analysis.Warnings = append(analysis.Warnings, fmt.Sprintf("%s: %v", family, reason))
	e.metrics.CountSkippedFamily(family)
	e.log.Warn().
		Err(err).
		Str("transaction_id", analysis.TransactionID).
		Str("family", family).
		Msg("rule family skipped")
}

// priorHistory drops the attempt itself and anything created after it, then
// orders the rest newest first.
func priorHistory(tx domain.TransactionRecord, history []domain.TransactionRecord) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, 0, len(history))
	for _, h := range history {
		if h.ID == tx.ID || h.CreatedAt.After(tx.CreatedAt) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
