// Package service carries the business rules on top of the storage
// layer: cart building, invoice finalization, settlement, and the
// cached read-side aggregates.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/cache"
	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
	"github.com/bhatsaqibU/kkg-erp-live/internal/xid"
)

var ErrAdminRequired = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var paymentModes = map[string]bool{
	"Cash":   true,
	"UPI":    true,
	"Credit": true,
}

type Service struct {
	repo       store.Repository
	metrics    cache.MetricsCache
	metricsTTL time.Duration
}

func New(repo store.Repository, metrics cache.MetricsCache, metricsTTL time.Duration) *Service {
	if metrics == nil {
		metrics = cache.NoopMetricsCache{}
	}
	if metricsTTL <= 0 {
		metricsTTL = 60 * time.Second
	}
	return &Service{
		repo:       repo,
		metrics:    metrics,
		metricsTTL: metricsTTL,
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrAdminRequired
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	created, err := s.repo.CreateProduct(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_create", fmt.Sprintf("id=%d,name=%s,price=%d,stock=%d", created.ID, created.Name, created.PricePaise, created.Stock))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	product.Name = strings.TrimSpace(product.Name)
	product.Category = strings.TrimSpace(product.Category)

	saved, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_update", fmt.Sprintf("id=%d,price=%d,cost=%d", saved.ID, saved.PricePaise, saved.CostPricePaise))
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", fmt.Sprintf("id=%d", id))
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, phone string) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, strings.TrimSpace(phone))
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.Name = strings.TrimSpace(req.Name)

	created, err := s.repo.CreateCustomer(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "customer_create", fmt.Sprintf("phone=%s,name=%s", created.Phone, created.Name))
	return created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Phone = strings.TrimSpace(customer.Phone)
	customer.Name = strings.TrimSpace(customer.Name)
	return s.repo.UpdateCustomer(ctx, customer)
}

func (s *Service) DeleteCustomer(ctx context.Context, phone string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if err := s.repo.DeleteCustomer(ctx, phone); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", fmt.Sprintf("phone=%s", phone))
	return nil
}

// CustomerStatement returns the customer's ledger, optionally bounded
// to a date window, alongside the all-time outstanding balance.
func (s *Service) CustomerStatement(ctx context.Context, phone string, from string, to string) ([]domain.Transaction, int64, error) {
	phone = strings.TrimSpace(phone)
	statement, err := s.repo.CustomerStatement(ctx, phone, from, to)
	if err != nil {
		return nil, 0, err
	}
	due, err := s.repo.CustomerDuePaise(ctx, phone)
	if err != nil {
		return nil, 0, err
	}
	return statement, due, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)

	created, err := s.repo.CreateSupplier(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "supplier_create", fmt.Sprintf("id=%d,name=%s", created.ID, created.Name))
	return created, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", fmt.Sprintf("id=%d", id))
	return nil
}

// NewCart starts an empty cart for a sale or a return.
func (s *Service) NewCart(txType string) (domain.Cart, error) {
	if txType != domain.TxTypeSale && txType != domain.TxTypeReturn {
		return domain.Cart{}, store.ErrInvalidInput
	}
	return domain.Cart{Type: txType, Lines: []domain.CartLine{}}, nil
}

// AddToCart appends a line with a snapshot of the product's current
// price and cost. For sales the requested quantity plus whatever the
// cart already holds must fit in stock; the check is advisory, the
// commit re-validates under the database transaction.
func (s *Service) AddToCart(ctx context.Context, cart domain.Cart, productID int64, qty int) (domain.Cart, error) {
	if qty < 1 {
		return cart, store.ErrInvalidInput
	}
	if cart.Type != domain.TxTypeSale && cart.Type != domain.TxTypeReturn {
		return cart, store.ErrInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return cart, err
	}

	if cart.Type == domain.TxTypeSale {
		inCart := cart.QuantityOf(productID)
		if inCart+qty > product.Stock {
			return cart, &store.StockExceededError{ProductID: productID, Available: product.Stock - inCart}
		}
	}

	cart.Lines = append(cart.Lines, domain.CartLine{
		ProductID:      productID,
		ProductName:    product.Name,
		Quantity:       qty,
		UnitPricePaise: product.PricePaise,
		CostPricePaise: product.CostPricePaise,
		TotalPaise:     int64(qty) * product.PricePaise,
	})
	return cart, nil
}

// Finalize turns a cart into a committed invoice. Sale totals are
// positive and may leave a due; return totals are negated, refunded in
// full unless the mode is Credit, in which case the negative due
// reduces the customer's balance.
func (s *Service) Finalize(ctx context.Context, cart domain.Cart, req domain.FinalizeRequest) (*domain.Invoice, error) {
	if len(cart.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if !paymentModes[req.PaymentMode] {
		return nil, store.ErrInvalidInput
	}

	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.PaymentMode == "Credit" && req.CustomerPhone == "" {
		return nil, store.ErrInvalidInput
	}
	if req.CustomerPhone != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerPhone); err != nil {
			return nil, err
		}
	}

	magnitude := cart.TotalPaise()
	var total, paid int64
	adjustments := make([]domain.StockAdjustment, 0, len(cart.Lines))

	switch cart.Type {
	case domain.TxTypeSale:
		total = magnitude
		paid = req.PaidPaise
		if paid < 0 || paid > total {
			return nil, store.ErrInvalidInput
		}
		for _, line := range cart.Lines {
			adjustments = append(adjustments, domain.StockAdjustment{ProductID: line.ProductID, Delta: -line.Quantity})
		}
	case domain.TxTypeReturn:
		total = -magnitude
		paid = total
		if req.PaymentMode == "Credit" {
			paid = 0
		}
		for _, line := range cart.Lines {
			adjustments = append(adjustments, domain.StockAdjustment{ProductID: line.ProductID, Delta: line.Quantity})
		}
	default:
		return nil, store.ErrInvalidInput
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	idPrefix := "INV"
	if cart.Type == domain.TxTypeReturn {
		idPrefix = "RET"
	}

	now := time.Now().UTC()
	header := domain.Transaction{
		InvoiceID:     xid.New(idPrefix),
		CustomerPhone: req.CustomerPhone,
		Date:          now.Format(domain.DateLayout),
		Type:          cart.Type,
		TotalPaise:    total,
		PaidPaise:     paid,
		DuePaise:      total - paid,
		PaymentMode:   req.PaymentMode,
		CreatedBy:     actor.Username,
		CreatedAt:     now,
	}

	items := make([]domain.InvoiceItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		items = append(items, domain.InvoiceItem{
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPricePaise: line.UnitPricePaise,
			CostPricePaise: line.CostPricePaise,
			TotalPaise:     line.TotalPaise,
		})
	}

	audit := domain.AuditLog{
		CreatedAt: now,
		Username:  actor.Username,
		Action:    "invoice_create",
		Details:   fmt.Sprintf("invoice=%s,type=%s,total=%d,mode=%s", header.InvoiceID, header.Type, header.TotalPaise, header.PaymentMode),
	}

	committed, err := s.repo.CreateInvoice(ctx, domain.Invoice{Header: header, Items: items}, adjustments, audit)
	if err != nil {
		return nil, err
	}

	s.invalidateMetrics(ctx, header.Date)
	return committed, nil
}

func (s *Service) FindInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	return s.repo.FindInvoiceByID(ctx, strings.TrimSpace(invoiceID))
}

func (s *Service) ListTransactions(ctx context.Context, from string, to string, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, from, to, limit)
}

// RecordPayment settles part of an invoice's outstanding due.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, amountPaise int64) (*domain.Transaction, error) {
	updated, err := s.repo.RecordPayment(ctx, strings.TrimSpace(invoiceID), amountPaise)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "payment_record", fmt.Sprintf("invoice=%s,amount=%d", updated.InvoiceID, amountPaise))
	s.invalidateMetrics(ctx, time.Now().UTC().Format(domain.DateLayout))
	return updated, nil
}

func (s *Service) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, from, to)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Category:    strings.TrimSpace(req.Category),
		AmountPaise: req.AmountPaise,
		Note:        strings.TrimSpace(req.Note),
		AddedBy:     actor.Username,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "expense_create", fmt.Sprintf("id=%d,category=%s,amount=%d", created.ID, created.Category, created.AmountPaise))
	s.invalidateMetrics(ctx, created.Date)
	return created, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "expense_delete", fmt.Sprintf("id=%d", id))
	s.invalidateMetrics(ctx, time.Now().UTC().Format(domain.DateLayout))
	return nil
}

// Dashboard returns the day's metrics, serving a cached snapshot when
// one is fresh. Cache failures fall through to the repository.
func (s *Service) Dashboard(ctx context.Context, date string) (*domain.DashboardMetrics, error) {
	if date == "" {
		date = time.Now().UTC().Format(domain.DateLayout)
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, store.ErrInvalidInput
	}

	key := metricsKey(date)
	if cached, ok, err := s.metrics.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[metrics-cache] WARN: get %s: %v", key, err)
	}

	metrics, err := s.repo.DashboardMetrics(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := s.metrics.Set(ctx, key, metrics, s.metricsTTL); err != nil {
		log.Printf("[metrics-cache] WARN: set %s: %v", key, err)
	}
	return metrics, nil
}

func (s *Service) SalesTrend(ctx context.Context, days int) ([]domain.DailySales, error) {
	return s.repo.SalesTrend(ctx, days)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func metricsKey(date string) string {
	return "dashboard:" + date
}

func (s *Service) invalidateMetrics(ctx context.Context, date string) {
	if err := s.metrics.Delete(ctx, metricsKey(date)); err != nil {
		log.Printf("[metrics-cache] WARN: delete %s: %v", metricsKey(date), err)
	}
}

// logAudit records the action best effort; a failed audit write never
// fails the operation that triggered it.
func (s *Service) logAudit(ctx context.Context, action string, details string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		CreatedAt: time.Now().UTC(),
		Username:  actor.Username,
		Action:    action,
		Details:   details,
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
