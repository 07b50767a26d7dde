package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/dbx"
	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
)

// CreateInvoice commits the header, all line items, the signed stock
// adjustments, and the audit row in a single transaction. The stock
// write is conditional: a product row is only updated when the delta
// keeps stock at or above zero, so two concurrent sales of the last
// unit cannot both succeed.
func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice, adjustments []domain.StockAdjustment, audit domain.AuditLog) (*domain.Invoice, error) {
	header := invoice.Header
	if header.InvoiceID == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if header.Type != domain.TxTypeSale && header.Type != domain.TxTypeReturn {
		return nil, store.ErrInvalidInput
	}
	if header.DuePaise != header.TotalPaise-header.PaidPaise {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (invoice_id, customer_phone, date, type, total_paise, paid_paise, due_paise, payment_mode, created_by, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`, header.InvoiceID, header.CustomerPhone, header.Date, header.Type, header.TotalPaise,
		header.PaidPaise, header.DuePaise, header.PaymentMode, header.CreatedBy, formatTime(header.CreatedAt))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	items := make([]domain.InvoiceItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		if item.Quantity < 1 || item.TotalPaise != int64(item.Quantity)*item.UnitPricePaise {
			return nil, store.ErrInvalidInput
		}
		var itemID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO invoice_items (invoice_id, product_name, quantity, unit_price_paise, cost_price_paise, total_paise)
			VALUES (?,?,?,?,?,?)
			RETURNING id
		`, header.InvoiceID, item.ProductName, item.Quantity, item.UnitPricePaise, item.CostPricePaise, item.TotalPaise).Scan(&itemID)
		if err != nil {
			return nil, err
		}
		item.ID = itemID
		item.InvoiceID = header.InvoiceID
		items = append(items, item)
	}

	for _, adj := range adjustments {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + ?
			WHERE id = ? AND stock + ? >= 0
		`, adj.Delta, adj.ProductID, adj.Delta)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var available int
			err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, adj.ProductID).Scan(&available)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			if err != nil {
				return nil, err
			}
			return nil, &store.StockExceededError{ProductID: adj.ProductID, Available: available}
		}
	}

	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (created_at, username, action, details)
		VALUES (?,?,?,?)
	`, formatTime(audit.CreatedAt), audit.Username, audit.Action, audit.Details)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.Invoice{Header: header, Items: items}, nil
}

func (s *Store) FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	header, err := s.findTransaction(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, product_name, quantity, unit_price_paise, cost_price_paise, total_paise
		FROM invoice_items
		WHERE invoice_id = ?
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductName, &item.Quantity, &item.UnitPricePaise, &item.CostPricePaise, &item.TotalPaise); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.Invoice{Header: *header, Items: items}, nil
}

func (s *Store) findTransaction(ctx context.Context, invoiceID string) (*domain.Transaction, error) {
	var t domain.Transaction
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_id, customer_phone, date, type, total_paise, paid_paise, due_paise, payment_mode, created_by, created_at
		FROM transactions
		WHERE invoice_id = ?
	`, invoiceID).Scan(&t.InvoiceID, &t.CustomerPhone, &t.Date, &t.Type, &t.TotalPaise, &t.PaidPaise, &t.DuePaise, &t.PaymentMode, &t.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

// ListTransactions returns headers between the given calendar days,
// most recent first. Empty bounds leave that side open.
func (s *Store) ListTransactions(ctx context.Context, from string, to string, limit int) ([]domain.Transaction, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	var conds []string
	var args []any
	if from != "" {
		conds = append(conds, "date >= ?")
		args = append(args, from)
	}
	if to != "" {
		conds = append(conds, "date <= ?")
		args = append(args, to)
	}
	query := `
		SELECT invoice_id, customer_phone, date, type, total_paise, paid_paise, due_paise, payment_mode, created_by, created_at
		FROM transactions
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	return s.queryTransactions(ctx, query, args...)
}

// CustomerStatement returns the customer's ledger oldest first,
// optionally bounded to a calendar-day window. The read goes through
// the generic row-map scanner shared with ad hoc reports.
func (s *Store) CustomerStatement(ctx context.Context, phone string, from string, to string) ([]domain.Transaction, error) {
	if _, err := s.GetCustomer(ctx, phone); err != nil {
		return nil, err
	}

	query := `
		SELECT invoice_id, customer_phone, date, type, total_paise, paid_paise, due_paise, payment_mode, created_by, created_at
		FROM transactions
		WHERE customer_phone = ?
	`
	args := []any{phone}
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY created_at ASC"

	rows, err := dbx.QueryMaps(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, domain.Transaction{
			InvoiceID:     rowString(row, "invoice_id"),
			CustomerPhone: rowString(row, "customer_phone"),
			Date:          rowString(row, "date"),
			Type:          rowString(row, "type"),
			TotalPaise:    rowInt64(row, "total_paise"),
			PaidPaise:     rowInt64(row, "paid_paise"),
			DuePaise:      rowInt64(row, "due_paise"),
			PaymentMode:   rowString(row, "payment_mode"),
			CreatedBy:     rowString(row, "created_by"),
			CreatedAt:     parseTime(rowString(row, "created_at")),
		})
	}
	return txs, nil
}

func rowString(row dbx.Row, col string) string {
	s, _ := row[col].(string)
	return s
}

func rowInt64(row dbx.Row, col string) int64 {
	switch v := row[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		var t domain.Transaction
		var createdAt string
		if err := rows.Scan(&t.InvoiceID, &t.CustomerPhone, &t.Date, &t.Type, &t.TotalPaise, &t.PaidPaise, &t.DuePaise, &t.PaymentMode, &t.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

// CustomerDuePaise sums outstanding dues across the customer's whole
// history. Returns contribute negative dues, reducing the balance.
func (s *Store) CustomerDuePaise(ctx context.Context, phone string) (int64, error) {
	var due int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(due_paise), 0) FROM transactions WHERE customer_phone = ?
	`, phone).Scan(&due)
	if err != nil {
		return 0, err
	}
	return due, nil
}

// RecordPayment settles part of an invoice's due. The update is
// conditional on the due covering the amount, so an overpayment or a
// concurrent settlement fails cleanly.
func (s *Store) RecordPayment(ctx context.Context, invoiceID string, amountPaise int64) (*domain.Transaction, error) {
	if amountPaise < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET paid_paise = paid_paise + ?, due_paise = due_paise - ?
		WHERE invoice_id = ? AND due_paise >= ?
	`, amountPaise, amountPaise, invoiceID, amountPaise)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.findTransaction(ctx, invoiceID); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidInput
	}
	return s.findTransaction(ctx, invoiceID)
}
