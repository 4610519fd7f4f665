package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brainsait/reconciler/internal/domain"
)

const recordColumns = `id, dedup_key, window_key, provider, transaction_id, order_id,
	internal_record_id, provider_record_id, currency, internal_amount, provider_amount,
	difference, status, reconciled_at, created_at, updated_at`

type ReconciliationRepo struct {
	db *sql.DB
}

func NewReconciliationRepo(db *sql.DB) *ReconciliationRepo {
	return &ReconciliationRepo{db: db}
}

// ReplaceWindow swaps the stored records of one reconciliation window for
// records in a single transaction, so a rerun never leaves the previous run's
// pairings behind. It returns the number of rows written.
func (r *ReconciliationRepo) ReplaceWindow(ctx context.Context, window string, records []domain.ReconciliationRecord) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reconciliation_records WHERE window_key = ?`, window); err != nil {
		return 0, fmt.Errorf("clear window: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO reconciliation_records (`+recordColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		rec := &records[i]
		if rec.WindowKey != window {
			return 0, fmt.Errorf("record %d: window %q does not match %q", i, rec.WindowKey, window)
		}
		res, err := stmt.ExecContext(ctx,
			rec.ID, rec.DedupKey, rec.WindowKey, string(rec.Provider), rec.TransactionID, rec.OrderID,
			rec.InternalRecordID, rec.ProviderRecordID, rec.Currency,
			rec.InternalAmount.String(), rec.ProviderAmount.String(), rec.Difference.String(),
			string(rec.Status), formatNullableTime(rec.ReconciledAt),
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

type RecordFilter struct {
	Provider string
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

func (r *ReconciliationRepo) ListRecords(ctx context.Context, f RecordFilter) ([]domain.ReconciliationRecord, int, error) {
	where, args := buildRecordWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reconciliation_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM reconciliation_records"+where+
			" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	return records, total, err
}

// RecordsBetween returns every record created within [start, end]. An empty
// provider matches all providers.
func (r *ReconciliationRepo) RecordsBetween(ctx context.Context, start, end time.Time, provider domain.Provider) ([]domain.ReconciliationRecord, error) {
	query := "SELECT " + recordColumns + " FROM reconciliation_records WHERE created_at >= ? AND created_at <= ?"
	args := []any{formatTime(start), formatTime(end)}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, string(provider))
	}

	rows, err := r.db.QueryContext(ctx, query+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *ReconciliationRepo) GetByID(ctx context.Context, id string) (*domain.ReconciliationRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM reconciliation_records WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}
	return scanRecord(rows)
}

func buildRecordWhere(f RecordFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRecords(rows *sql.Rows) ([]domain.ReconciliationRecord, error) {
	var records []domain.ReconciliationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*domain.ReconciliationRecord, error) {
	var rec domain.ReconciliationRecord
	var provider, status, createdAt, updatedAt string
	var reconciledAt sql.NullString

	err := rows.Scan(
		&rec.ID, &rec.DedupKey, &rec.WindowKey, &provider, &rec.TransactionID, &rec.OrderID,
		&rec.InternalRecordID, &rec.ProviderRecordID, &rec.Currency,
		&rec.InternalAmount, &rec.ProviderAmount, &rec.Difference, &status,
		&reconciledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Provider = domain.Provider(provider)
	rec.Status = domain.ReconciliationStatus(status)
	if rec.ReconciledAt, err = parseNullableTime(reconciledAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
