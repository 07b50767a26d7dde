package sqlstore

import (
	"context"
	"fmt"

	"github.com/bhatsaqibU/kkg-erp-live/internal/dbx"
)

// EnsureSchema creates every table and index the store needs. It is
// idempotent and runs on startup against both backends; the only
// dialect-specific piece is the auto-increment primary key clause.
func EnsureSchema(ctx context.Context, db *dbx.DB) error {
	pk := db.AutoIncrementPK()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
			id %s,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			price_paise BIGINT NOT NULL,
			cost_price_paise BIGINT NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			supplier_id BIGINT
		)`, pk),
		`CREATE TABLE IF NOT EXISTS customers (
			phone TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			joined_date TEXT NOT NULL,
			credit_limit_paise BIGINT NOT NULL DEFAULT 5000000
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS suppliers (
			id %s,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT ''
		)`, pk),
		`CREATE TABLE IF NOT EXISTS transactions (
			invoice_id TEXT PRIMARY KEY,
			customer_phone TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			type TEXT NOT NULL,
			total_paise BIGINT NOT NULL,
			paid_paise BIGINT NOT NULL,
			due_paise BIGINT NOT NULL,
			payment_mode TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS invoice_items (
			id %s,
			invoice_id TEXT NOT NULL REFERENCES transactions(invoice_id),
			product_name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price_paise BIGINT NOT NULL,
			cost_price_paise BIGINT NOT NULL DEFAULT 0,
			total_paise BIGINT NOT NULL
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS expenses (
			id %s,
			date TEXT NOT NULL,
			category TEXT NOT NULL,
			amount_paise BIGINT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			added_by TEXT NOT NULL DEFAULT ''
		)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_logs (
			id %s,
			created_at TEXT NOT NULL,
			username TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT ''
		)`, pk),
		`CREATE TABLE IF NOT EXISTS app_users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions (customer_phone)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items (invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses (date)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
