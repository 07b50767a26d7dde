package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/dbx"
	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
)

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone, name, address, joined_date, credit_limit_paise
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.Phone, &c.Name, &c.Address, &c.JoinedDate, &c.CreditLimitPaise); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT phone, name, address, joined_date, credit_limit_paise
		FROM customers
		WHERE phone = ?
	`, phone).Scan(&c.Phone, &c.Name, &c.Address, &c.JoinedDate, &c.CreditLimitPaise)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	if req.Phone == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	joined := time.Now().UTC().Format(domain.DateLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (phone, name, address, joined_date, credit_limit_paise)
		VALUES (?,?,?,?,?)
	`, req.Phone, req.Name, req.Address, joined, req.CreditLimitPaise)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	return &domain.Customer{
		Phone:            req.Phone,
		Name:             req.Name,
		Address:          req.Address,
		JoinedDate:       joined,
		CreditLimitPaise: req.CreditLimitPaise,
	}, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = ?, address = ?, credit_limit_paise = ?
		WHERE phone = ?
	`, customer.Name, customer.Address, customer.CreditLimitPaise, customer.Phone)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomer(ctx, customer.Phone)
}

// DeleteCustomer refuses to remove a customer who has invoices: the
// ledger keeps its history intact. The delete is conditional on an
// empty history inside one transaction, so a concurrent first sale
// cannot slip in between check and delete.
func (s *Store) DeleteCustomer(ctx context.Context, phone string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM customers
		WHERE phone = ?
		  AND NOT EXISTS (SELECT 1 FROM transactions WHERE customer_phone = ?)
	`, phone, phone)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM transactions WHERE customer_phone = ?
		`, phone).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return store.ErrCustomerHasHistory
		}
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Address); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, phone, address)
		VALUES (?,?,?)
		RETURNING id
	`, req.Name, req.Phone, req.Address).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &domain.Supplier{ID: id, Name: req.Name, Phone: req.Phone, Address: req.Address}, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = ?`, id)
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
