package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/domain"
)

// HistorySource returns a customer's transactions created at or after since.
type HistorySource interface {
	FetchCustomerHistory(ctx context.Context, customerID string, since time.Time) ([]domain.TransactionRecord, error)
}

// Service loads customer history and runs the engine. It is the entry point
// for payment flows that have an attempt but no history at hand.
type Service struct {
	engine  *Engine
	history HistorySource
	log     zerolog.Logger
}

func NewService(engine *Engine, history HistorySource, log zerolog.Logger) *Service {
	return &Service{
		engine:  engine,
		history: history,
		log:     log.With().Str("component", "fraud").Logger(),
	}
}

// Check analyzes attempt. When history cannot be loaded the families that
// depend on it are skipped and the rest still run.
func (s *Service) Check(ctx context.Context, attempt domain.PaymentAttempt) (*domain.FraudAnalysis, error) {
	if err := domain.ValidateTransaction(&attempt.Transaction); err != nil {
		return nil, err
	}

	customerID := attempt.CustomerID
	if customerID == "" {
		customerID = attempt.Transaction.CustomerID
	}

	var history []domain.TransactionRecord
	var skipped map[string]error
	if customerID != "" {
		since := attempt.Transaction.CreatedAt.Add(-s.engine.cfg.HistoryLookback)
		var err error
		history, err = s.history.FetchCustomerHistory(ctx, customerID, since)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("customer_id", customerID).
				Msg("customer history unavailable")
			reason := fmt.Errorf("customer history unavailable: %w", err)
			skipped = map[string]error{
				FamilyVelocity: reason,
				FamilyBehavior: reason,
			}
		}
	}

	return s.engine.analyze(ctx, attempt, history, skipped)
}
