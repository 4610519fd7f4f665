package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/matcher"
	"github.com/brainsait/reconciler/internal/metrics"
	"github.com/brainsait/reconciler/internal/repository"
)

// TransactionFetcher returns one side's records for a provider window.
type TransactionFetcher interface {
	FetchTransactions(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.TransactionRecord, error)
}

// RecordStore persists reconciliation records. ReplaceWindow drops whatever an
// earlier run stored for the window before writing the new records.
type RecordStore interface {
	ReplaceWindow(ctx context.Context, window string, records []domain.ReconciliationRecord) (int, error)
	RecordsBetween(ctx context.Context, start, end time.Time, provider domain.Provider) ([]domain.ReconciliationRecord, error)
	ListRecords(ctx context.Context, f repository.RecordFilter) ([]domain.ReconciliationRecord, int, error)
	GetByID(ctx context.Context, id string) (*domain.ReconciliationRecord, error)
}

// Service reconciles the internal ledger against a provider's feed.
type Service struct {
	internal TransactionFetcher
	provider TransactionFetcher
	store    RecordStore
	locker   Locker
	matchCfg matcher.Config
	now      func() time.Time
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithMatcherConfig(cfg matcher.Config) Option {
	return func(s *Service) { s.matchCfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(internal, provider TransactionFetcher, store RecordStore, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		internal: internal,
		provider: provider,
		store:    store,
		locker:   NewLocalLocker(),
		matchCfg: matcher.DefaultConfig(),
		now:      time.Now,
		log:      log.With().Str("component", "reconciliation").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reconcile matches the provider's internal and provider records created in
// [start, end] and persists one record per pair or orphan. The run is
// all-or-nothing: a fetch failure or cancellation before persistence leaves
// the store untouched, and the write itself is a single transaction.
func (s *Service) Reconcile(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.ReconciliationRecord, error) {
	if err := validateWindow(provider, start, end); err != nil {
		return nil, err
	}

	began := time.Now()
	records, err := s.reconcile(ctx, provider, start, end)
	outcome := "success"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, domain.ErrRunInProgress) {
			outcome = "conflict"
		}
	}
	s.metrics.ObserveReconciliation(string(provider), outcome, time.Since(began).Seconds())
	return records, err
}

func (s *Service) reconcile(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.ReconciliationRecord, error) {
	log := s.log.With().
		Str("provider", string(provider)).
		Time("start", start).
		Time("end", end).
		Logger()

	window := WindowKey(provider, start, end)
	release, err := s.locker.Acquire(ctx, window)
	if err != nil {
		log.Warn().Err(err).Msg("could not acquire run lock")
		return nil, err
	}
	defer release()

	internal, err := s.internal.FetchTransactions(ctx, provider, start, end)
	if err != nil {
		log.Error().Err(err).Msg("fetch internal transactions")
		return nil, &domain.DataSourceError{Source: "internal", Provider: provider, Err: err}
	}
	external, err := s.provider.FetchTransactions(ctx, provider, start, end)
	if err != nil {
		log.Error().Err(err).Msg("fetch provider transactions")
		return nil, &domain.DataSourceError{Source: "provider", Provider: provider, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := validateBatch("internal", internal); err != nil {
		return nil, err
	}
	if err := validateBatch("provider", external); err != nil {
		return nil, err
	}

	records := s.buildRecords(window, provider, internal, external)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Once matching is done the write goes through even if the caller gives up.
	inserted, err := s.store.ReplaceWindow(context.WithoutCancel(ctx), window, records)
	if err != nil {
		log.Error().Err(err).Int("records", len(records)).Msg("persist reconciliation records")
		return nil, &domain.PersistenceError{Op: "reconciliation records", Err: err}
	}

	counts := make(map[domain.ReconciliationStatus]int)
	for i := range records {
		counts[records[i].Status]++
		s.metrics.CountRecord(string(provider), string(records[i].Status))
	}

	log.Info().
		Int("internal", len(internal)).
		Int("provider_records", len(external)).
		Int("matched", counts[domain.ReconciliationMatched]).
		Int("disputed", counts[domain.ReconciliationDisputed]).
		Int("unmatched", counts[domain.ReconciliationUnmatched]).
		Int("inserted", inserted).
		Msg("reconciliation complete")

	return records, nil
}

func (s *Service) buildRecords(window string, provider domain.Provider, internal, external []domain.TransactionRecord) []domain.ReconciliationRecord {
	now := s.now().UTC().Truncate(time.Second)
	pool := matcher.NewPool(s.matchCfg, external)

	records := make([]domain.ReconciliationRecord, 0, len(internal)+len(external))
	for _, in := range internal {
		m, ok := pool.Take(in)
		if !ok {
			records = append(records, newRecord(window, provider, now, &in, nil))
			continue
		}
		s.log.Debug().
			Str("internal_id", in.ID).
			Str("provider_id", m.Candidate.ID).
			Stringer("tier", m.Tier).
			Msg("matched")
		records = append(records, newRecord(window, provider, now, &in, &m.Candidate))
	}

	for _, orphan := range pool.Remaining() {
		records = append(records, newRecord(window, provider, now, nil, &orphan))
	}
	return records
}

// newRecord builds the record for a pair. Either side may be nil, in which case
// its amount counts as zero.
func newRecord(window string, provider domain.Provider, now time.Time, in, ext *domain.TransactionRecord) domain.ReconciliationRecord {
	rec := domain.ReconciliationRecord{
		WindowKey:      window,
		Provider:       provider,
		InternalAmount: decimal.Zero,
		ProviderAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if in != nil {
		rec.InternalRecordID = in.ID
		rec.TransactionID = in.TransactionID
		rec.OrderID = in.OrderID
		rec.Currency = in.Currency
		rec.InternalAmount = in.Amount
	}
	if ext != nil {
		rec.ProviderRecordID = ext.ID
		rec.ProviderAmount = ext.Amount
		if rec.TransactionID == "" {
			rec.TransactionID = ext.TransactionID
		}
		if rec.OrderID == "" {
			rec.OrderID = ext.OrderID
		}
		if rec.Currency == "" {
			rec.Currency = ext.Currency
		}
	}

	rec.Difference = rec.InternalAmount.Sub(rec.ProviderAmount).Abs()
	switch {
	case in == nil || ext == nil:
		rec.Status = domain.ReconciliationUnmatched
	case rec.Difference.LessThanOrEqual(domain.AmountTolerance):
		rec.Status = domain.ReconciliationMatched
		reconciledAt := now
		rec.ReconciledAt = &reconciledAt
	default:
		rec.Status = domain.ReconciliationDisputed
	}

	rec.DedupKey = fmt.Sprintf("%s|%s|%s", window, rec.InternalRecordID, rec.ProviderRecordID)
	rec.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.DedupKey)).String()
	return rec
}

// GenerateSummary aggregates the records created in [start, end]. An empty
// provider summarizes all providers.
func (s *Service) GenerateSummary(ctx context.Context, start, end time.Time, provider domain.Provider) (*domain.ReconciliationSummary, error) {
	if provider != "" && !provider.Valid() {
		return nil, &domain.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	records, err := s.store.RecordsBetween(ctx, start, end, provider)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	summary := Summarize(records, start, end)
	return &summary, nil
}

func (s *Service) ListRecords(ctx context.Context, f repository.RecordFilter) ([]domain.ReconciliationRecord, int, error) {
	if f.Provider != "" {
		if _, err := domain.ParseProvider(f.Provider); err != nil {
			return nil, 0, err
		}
	}
	if f.Status != "" && !domain.ReconciliationStatus(f.Status).Valid() {
		return nil, 0, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	return s.store.ListRecords(ctx, f)
}

// GetRecord returns one stored record. A missing record is domain.ErrNotFound.
func (s *Service) GetRecord(ctx context.Context, id string) (*domain.ReconciliationRecord, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "id", Reason: "required"}
	}
	return s.store.GetByID(ctx, id)
}

func validateWindow(provider domain.Provider, start, end time.Time) error {
	if !provider.Valid() {
		return &domain.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	return validateRange(start, end)
}

func validateRange(start, end time.Time) error {
	if start.IsZero() {
		return &domain.ValidationError{Field: "start", Reason: "required"}
	}
	if end.IsZero() {
		return &domain.ValidationError{Field: "end", Reason: "required"}
	}
	if end.Before(start) {
		return &domain.ValidationError{Field: "end", Reason: "must not be before start"}
	}
	return nil
}

func validateBatch(source string, txns []domain.TransactionRecord) error {
	for i := range txns {
		if err := domain.ValidateTransaction(&txns[i]); err != nil {
			return fmt.Errorf("%s record %s: %w", source, txns[i].ID, err)
		}
	}
	return nil
}
