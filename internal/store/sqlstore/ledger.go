package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
)

func (s *Store) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
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
	query := `SELECT id, date, category, amount_paise, note, added_by FROM expenses`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Date, &e.Category, &e.AmountPaise, &e.Note, &e.AddedBy); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Category == "" || expense.AmountPaise < 1 {
		return nil, store.ErrInvalidInput
	}
	if expense.Date == "" {
		expense.Date = time.Now().UTC().Format(domain.DateLayout)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO expenses (date, category, amount_paise, note, added_by)
		VALUES (?,?,?,?,?)
		RETURNING id
	`, expense.Date, expense.Category, expense.AmountPaise, expense.Note, expense.AddedBy).Scan(&id)
	if err != nil {
		return nil, err
	}
	expense.ID = id
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DashboardMetrics aggregates one calendar day. Receivables are across
// all time, not just the day: they answer "how much is owed right now".
// Profit is cost aware: gross margin from line items minus the day's
// expenses.
func (s *Store) DashboardMetrics(ctx context.Context, date string) (*domain.DashboardMetrics, error) {
	m := &domain.DashboardMetrics{Date: date}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_paise), 0) FROM transactions WHERE date = ? AND type = ?
	`, date, domain.TxTypeSale).Scan(&m.RevenuePaise)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_paise), 0) FROM expenses WHERE date = ?
	`, date).Scan(&m.ExpensesPaise)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(due_paise), 0) FROM transactions
	`).Scan(&m.ReceivablesPaise)
	if err != nil {
		return nil, err
	}

	// Returns reverse the margin their goods earned.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN t.type = ? THEN 1 ELSE -1 END
			* (ii.unit_price_paise - ii.cost_price_paise) * ii.quantity
		), 0)
		FROM invoice_items ii
		JOIN transactions t ON t.invoice_id = ii.invoice_id
		WHERE t.date = ?
	`, domain.TxTypeSale, date).Scan(&m.GrossMarginPaise)
	if err != nil {
		return nil, err
	}

	m.NetProfitPaise = m.GrossMarginPaise - m.ExpensesPaise
	return m, nil
}

// SalesTrend returns one point per day for the trailing window ending
// today, zero-filling days without sales.
func (s *Store) SalesTrend(ctx context.Context, days int) ([]domain.DailySales, error) {
	if days < 1 || days > 365 {
		days = 14
	}

	today := time.Now().UTC()
	start := today.AddDate(0, 0, -(days - 1)).Format(domain.DateLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, COALESCE(SUM(total_paise), 0)
		FROM transactions
		WHERE type = ? AND date >= ?
		GROUP BY date
	`, domain.TxTypeSale, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDate := make(map[string]int64, days)
	for rows.Next() {
		var date string
		var sales int64
		if err := rows.Scan(&date, &sales); err != nil {
			return nil, err
		}
		byDate[date] = sales
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	trend := make([]domain.DailySales, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(domain.DateLayout)
		trend = append(trend, domain.DailySales{Date: date, SalesPaise: byDate[date]})
	}
	return trend, nil
}
