package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrCustomerHasHistory = errors.New("customer has transaction history")
	ErrInvalidInput       = errors.New("invalid input")
)

// StockExceededError is returned when an invoice commit would drive a
// product's stock below zero. Available is the stock observed by the
// failing conditional update.
type StockExceededError struct {
	ProductID int64
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("stock exceeded for product %d: %d available", e.ProductID, e.Available)
}

type Repository interface {
	// Catalog.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	// Customers. The phone number is the primary key.
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, phone string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, phone string) error

	// Suppliers.
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id int64) error

	// Invoices. CreateInvoice persists the header, its items, the
	// signed stock adjustments, and an audit row in one transaction;
	// if any product would go negative it fails with
	// *StockExceededError and nothing is written.
	CreateInvoice(ctx context.Context, invoice domain.Invoice, adjustments []domain.StockAdjustment, audit domain.AuditLog) (*domain.Invoice, error)
	FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error)
	ListTransactions(ctx context.Context, from string, to string, limit int) ([]domain.Transaction, error)
	CustomerStatement(ctx context.Context, phone string, from string, to string) ([]domain.Transaction, error)
	CustomerDuePaise(ctx context.Context, phone string) (int64, error)
	RecordPayment(ctx context.Context, invoiceID string, amountPaise int64) (*domain.Transaction, error)

	// Expenses.
	ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id int64) error

	// Aggregates.
	DashboardMetrics(ctx context.Context, date string) (*domain.DashboardMetrics, error)
	SalesTrend(ctx context.Context, days int) ([]domain.DailySales, error)

	// Audit.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Users.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error

	Close() error
}
