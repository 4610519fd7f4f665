package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brainsait/reconciler/internal/domain"
)

type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// ReportExistsByHash checks whether a report with the given file hash has
// already been ingested.
func (r *ReportRepo) ReportExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM provider_reports WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

// SaveReport registers the report and writes its records into the provider
// feed in a single transaction. It returns the number of records inserted.
func (r *ReportRepo) SaveReport(ctx context.Context, rpt *domain.ProviderReport, records []domain.TransactionRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO provider_reports
		(id, provider, format, batch_id, file_hash, record_count, ingested_at)
		VALUES (?,?,?,?,?,?,?)`,
		rpt.ID, string(rpt.Provider), rpt.Format, rpt.BatchID, rpt.FileHash,
		rpt.RecordCount, formatTime(rpt.IngestedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}

	inserted, err := insertTransactions(ctx, tx, providerFeedTable, records)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *ReportRepo) ListReports(ctx context.Context, provider domain.Provider) ([]domain.ProviderReport, error) {
	query := `SELECT id, provider, format, batch_id, file_hash, record_count, ingested_at
		FROM provider_reports`
	var args []any
	if provider != "" {
		query += " WHERE provider = ?"
		args = append(args, string(provider))
	}

	rows, err := r.db.QueryContext(ctx, query+" ORDER BY ingested_at DESC, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var reports []domain.ProviderReport
	for rows.Next() {
		var rpt domain.ProviderReport
		var prov, ingestedAt string
		if err := rows.Scan(&rpt.ID, &prov, &rpt.Format, &rpt.BatchID, &rpt.FileHash, &rpt.RecordCount, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rpt.Provider = domain.Provider(prov)
		if rpt.IngestedAt, err = parseTime(ingestedAt); err != nil {
			return nil, err
		}
		reports = append(reports, rpt)
	}
	return reports, rows.Err()
}
