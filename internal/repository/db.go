package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func transactionTableDDL(table string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			settled_at TEXT,
			fees TEXT,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_provider_created ON ` + table + `(provider, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_transaction_id ON ` + table + `(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + table + `_customer_created ON ` + table + `(customer_id, created_at)`,
	}
}

func createTables(db *sql.DB) error {
	var stmts []string
	stmts = append(stmts, transactionTableDDL(ledgerTable)...)
	stmts = append(stmts, transactionTableDDL(providerFeedTable)...)
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS provider_reports (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			format TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			ingested_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_provider_reports_provider ON provider_reports(provider)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_records (
			id TEXT PRIMARY KEY,
			dedup_key TEXT UNIQUE NOT NULL,
			window_key TEXT NOT NULL,
			provider TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			internal_record_id TEXT NOT NULL DEFAULT '',
			provider_record_id TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL,
			internal_amount TEXT NOT NULL,
			provider_amount TEXT NOT NULL,
			difference TEXT NOT NULL,
			status TEXT NOT NULL,
			reconciled_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_records_window ON reconciliation_records(window_key)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_records_created ON reconciliation_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_records_provider ON reconciliation_records(provider)`,
		`CREATE INDEX IF NOT EXISTS idx_reconciliation_records_status ON reconciliation_records(status)`,
	)

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
