package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brainsait/reconciler/internal/domain"
)

const (
	ledgerTable       = "internal_transactions"
	providerFeedTable = "provider_transactions"

	transactionColumns = `id, provider, transaction_id, order_id, customer_id, amount, currency,
		status, created_at, settled_at, fees, metadata`
)

// TransactionRepo stores TransactionRecords in one table. The same type backs
// the internal ledger and the provider feed.
type TransactionRepo struct {
	db    *sql.DB
	table string
}

// NewLedgerRepo returns the repository for internally recorded payments.
func NewLedgerRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db, table: ledgerTable}
}

// NewProviderFeedRepo returns the repository for provider-reported payments.
func NewProviderFeedRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db, table: providerFeedTable}
}

func (r *TransactionRepo) Insert(ctx context.Context, tx *domain.TransactionRecord) error {
	args, err := transactionArgs(tx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertTransactionSQL(r.table), args...)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) BulkInsert(ctx context.Context, txns []domain.TransactionRecord) (int, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	inserted, err := insertTransactions(ctx, sqlTx, r.table, txns)
	if err != nil {
		return 0, err
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table).Scan(&count)
	return count, err
}

func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+transactionColumns+" FROM "+r.table+" WHERE id = ?", id)
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
	return scanTransaction(rows)
}

// FetchTransactions returns the provider's records created within
// [start, end], oldest first.
func (r *TransactionRepo) FetchTransactions(ctx context.Context, provider domain.Provider, start, end time.Time) ([]domain.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM "+r.table+
			" WHERE provider = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at, id",
		string(provider), formatTime(start), formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// FetchCustomerHistory returns the customer's records created at or after
// since, newest first.
func (r *TransactionRepo) FetchCustomerHistory(ctx context.Context, customerID string, since time.Time) ([]domain.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM "+r.table+
			" WHERE customer_id = ? AND created_at >= ? ORDER BY created_at DESC, id",
		customerID, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

type TransactionFilter struct {
	Provider   string
	Status     string
	CustomerID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilter) ([]domain.TransactionRecord, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM "+r.table+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	txns, err := scanTransactions(rows)
	return txns, total, err
}

// --- helpers ---

func insertTransactionSQL(table string) string {
	return `INSERT OR IGNORE INTO ` + table + ` (` + transactionColumns + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
}

func insertTransactions(ctx context.Context, sqlTx *sql.Tx, table string, txns []domain.TransactionRecord) (int, error) {
	stmt, err := sqlTx.PrepareContext(ctx, insertTransactionSQL(table))
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range txns {
		args, err := transactionArgs(&txns[i])
		if err != nil {
			return inserted, fmt.Errorf("row %d: %w", i, err)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}
	return inserted, nil
}

func transactionArgs(tx *domain.TransactionRecord) ([]any, error) {
	meta := tx.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var fees any
	if tx.Fees != nil {
		fees = tx.Fees.String()
	}

	return []any{
		tx.ID, string(tx.Provider), tx.TransactionID, tx.OrderID, tx.CustomerID,
		tx.Amount.String(), tx.Currency, tx.Status, formatTime(tx.CreatedAt),
		formatNullableTime(tx.SettledAt), fees, string(metaJSON),
	}, nil
}

func buildTransactionWhere(f TransactionFilter) (string, []any) {
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
	if f.CustomerID != "" {
		clauses = append(clauses, "customer_id = ?")
		args = append(args, f.CustomerID)
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

func scanTransactions(rows *sql.Rows) ([]domain.TransactionRecord, error) {
	var txns []domain.TransactionRecord
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *tx)
	}
	return txns, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*domain.TransactionRecord, error) {
	var tx domain.TransactionRecord
	var provider, createdAt, metaJSON string
	var settledAt sql.NullString
	var fees decimal.NullDecimal

	err := rows.Scan(
		&tx.ID, &provider, &tx.TransactionID, &tx.OrderID, &tx.CustomerID,
		&tx.Amount, &tx.Currency, &tx.Status, &createdAt, &settledAt, &fees, &metaJSON,
	)
	if err != nil {
		return nil, err
	}

	tx.Provider = domain.Provider(provider)
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tx.SettledAt, err = parseNullableTime(settledAt); err != nil {
		return nil, err
	}
	if fees.Valid {
		f := fees.Decimal
		tx.Fees = &f
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &tx.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &tx, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func pageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
