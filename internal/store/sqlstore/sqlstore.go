// Package sqlstore implements store.Repository on top of database/sql
// for both supported backends. All SQL is written once with ?
// placeholders; dbx handles dialect differences.
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

// timeLayout is the portable text representation for timestamps. Both
// backends store them as TEXT so comparisons stay lexicographic.
const timeLayout = time.RFC3339Nano

type Store struct {
	db *dbx.DB
}

func New(db *dbx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_paise, cost_price_paise, stock, low_stock_threshold, supplier_id
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func scanProduct(rows *sql.Rows) (domain.Product, error) {
	var p domain.Product
	var supplierID sql.NullInt64
	if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PricePaise, &p.CostPricePaise, &p.Stock, &p.LowStockThreshold, &supplierID); err != nil {
		return domain.Product{}, err
	}
	if supplierID.Valid {
		p.SupplierID = &supplierID.Int64
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	var supplierID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_paise, cost_price_paise, stock, low_stock_threshold, supplier_id
		FROM products
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.PricePaise, &p.CostPricePaise, &p.Stock, &p.LowStockThreshold, &supplierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if supplierID.Valid {
		p.SupplierID = &supplierID.Int64
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if req.Name == "" || req.PricePaise < 0 || req.CostPricePaise < 0 || req.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if req.LowStockThreshold < 0 {
		req.LowStockThreshold = 0
	}

	var supplierID any
	if req.SupplierID != nil {
		supplierID = *req.SupplierID
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, price_paise, cost_price_paise, stock, low_stock_threshold, supplier_id)
		VALUES (?,?,?,?,?,?,?)
		RETURNING id
	`, req.Name, req.Category, req.PricePaise, req.CostPricePaise, req.Stock, req.LowStockThreshold, supplierID).Scan(&id)
	if err != nil {
		return nil, err
	}

	return &domain.Product{
		ID:                id,
		Name:              req.Name,
		Category:          req.Category,
		PricePaise:        req.PricePaise,
		CostPricePaise:    req.CostPricePaise,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		SupplierID:        req.SupplierID,
	}, nil
}

// UpdateProduct rewrites master data only. Stock is deliberately not
// settable here; it moves through invoice commits.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PricePaise < 0 || product.CostPricePaise < 0 {
		return nil, store.ErrInvalidInput
	}

	var supplierID any
	if product.SupplierID != nil {
		supplierID = *product.SupplierID
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, category = ?, price_paise = ?, cost_price_paise = ?, low_stock_threshold = ?, supplier_id = ?
		WHERE id = ?
	`, product.Name, product.Category, product.PricePaise, product.CostPricePaise, product.LowStockThreshold, supplierID, product.ID)
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
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
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

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_paise, cost_price_paise, stock, low_stock_threshold, supplier_id
		FROM products
		WHERE stock <= low_stock_threshold
		ORDER BY stock ASC, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
