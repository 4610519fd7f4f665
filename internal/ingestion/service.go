package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brainsait/reconciler/internal/domain"
	"github.com/brainsait/reconciler/internal/metrics"
)

// ReportStore registers reports and stores their records atomically.
type ReportStore interface {
	ReportExistsByHash(ctx context.Context, hash string) (bool, error)
	SaveReport(ctx context.Context, rpt *domain.ProviderReport, records []domain.TransactionRecord) (int, error)
}

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	ReportID          string `json:"report_id"`
	Format            Format `json:"format"`
	AlreadyIngested   bool   `json:"already_ingested"`
	RecordsParsed     int    `json:"records_parsed"`
	RecordsIngested   int    `json:"records_ingested"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// Service ingests provider settlement reports into the provider feed.
type Service struct {
	store   ReportStore
	metrics *metrics.Metrics
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(store ReportStore, m *metrics.Metrics, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		metrics: m,
		now:     time.Now,
		log:     log.With().Str("component", "ingestion").Logger(),
	}
}

// IngestReport parses a settlement file and stores its records. A file whose
// SHA-256 hash was already ingested is acknowledged without being parsed.
func (s *Service) IngestReport(ctx context.Context, data []byte, provider domain.Provider, format string) (*IngestResult, error) {
	if !provider.Valid() {
		return nil, &domain.ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", provider)}
	}
	if len(data) == 0 {
		return nil, &domain.ValidationError{Field: "file", Reason: "is empty"}
	}
	f, err := ResolveFormat(provider, format)
	if err != nil {
		return nil, err
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.store.ReportExistsByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		s.log.Info().Str("provider", string(provider)).Str("hash", hash).Msg("report already ingested")
		return &IngestResult{Format: f, AlreadyIngested: true}, nil
	}

	records, batchID, err := Parse(f, data, provider)
	if err != nil {
		return nil, &domain.ValidationError{Field: "file", Reason: fmt.Sprintf("parse %s: %v", f, err)}
	}
	for i := range records {
		if err := domain.ValidateTransaction(&records[i]); err != nil {
			return nil, fmt.Errorf("record %s: %w", records[i].ID, err)
		}
	}

	now := s.now().UTC()
	reportID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash)).String()
	if batchID == "" {
		batchID = fmt.Sprintf("BATCH-%s-%s", provider, now.Format("20060102T150405"))
	}

	report := &domain.ProviderReport{
		ID:          reportID,
		Provider:    provider,
		Format:      string(f),
		BatchID:     batchID,
		FileHash:    hash,
		RecordCount: len(records),
		IngestedAt:  now,
	}
	inserted, err := s.store.SaveReport(ctx, report, records)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "provider report", Err: err}
	}
	s.metrics.CountIngested(string(provider), inserted)

	s.log.Info().
		Str("report_id", reportID).
		Str("provider", string(provider)).
		Str("format", string(f)).
		Str("batch_id", batchID).
		Int("records", len(records)).
		Int("inserted", inserted).
		Msg("report ingested")

	return &IngestResult{
		ReportID:          reportID,
		Format:            f,
		RecordsParsed:     len(records),
		RecordsIngested:   inserted,
		DuplicatesSkipped: len(records) - inserted,
	}, nil
}
