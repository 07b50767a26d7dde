// Package memory is an in-process store.Repository used for tests and
// for running the server without a database file. All operations take a
// single lock, which makes every commit trivially atomic.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	nextProductID  int64
	nextSupplierID int64
	nextExpenseID  int64
	nextItemID     int64
	nextAuditID    int64

	products       map[int64]domain.Product
	customers      map[string]domain.Customer
	suppliers      map[int64]domain.Supplier
	transactions   map[string]domain.Transaction
	itemsByInvoice map[string][]domain.InvoiceItem
	expenses       map[int64]domain.Expense
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:       map[int64]domain.Product{},
		customers:      map[string]domain.Customer{},
		suppliers:      map[int64]domain.Supplier{},
		transactions:   map[string]domain.Transaction{},
		itemsByInvoice: map[string][]domain.InvoiceItem{},
		expenses:       map[int64]domain.Expense{},
		users:          map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store preloaded with demo catalog data and the
// bootstrap accounts. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_STAFF_PASSWORD; unset variables fall back to dev defaults with a
// warning.
func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	seed := []domain.ProductCreateRequest{
		{Name: "Urea 45kg", Category: "Fertilizer", PricePaise: 30000, CostPricePaise: 26000, Stock: 120, LowStockThreshold: 20},
		{Name: "DAP 50kg", Category: "Fertilizer", PricePaise: 145000, CostPricePaise: 132000, Stock: 60, LowStockThreshold: 10},
		{Name: "MOP 50kg", Category: "Fertilizer", PricePaise: 90000, CostPricePaise: 81000, Stock: 40, LowStockThreshold: 8},
		{Name: "NPK 12:32:16 50kg", Category: "Fertilizer", PricePaise: 155000, CostPricePaise: 140000, Stock: 35, LowStockThreshold: 8},
		{Name: "Mancozeb 1kg", Category: "Pesticide", PricePaise: 28000, CostPricePaise: 23000, Stock: 80, LowStockThreshold: 15},
		{Name: "Carbendazim 500g", Category: "Pesticide", PricePaise: 19000, CostPricePaise: 15000, Stock: 70, LowStockThreshold: 15},
		{Name: "Chlorpyrifos 1L", Category: "Pesticide", PricePaise: 46000, CostPricePaise: 39000, Stock: 45, LowStockThreshold: 10},
		{Name: "Seed Potato 25kg", Category: "Seeds", PricePaise: 60000, CostPricePaise: 48000, Stock: 30, LowStockThreshold: 5},
		{Name: "Zinc Sulphate 10kg", Category: "Micronutrient", PricePaise: 42000, CostPricePaise: 36000, Stock: 25, LowStockThreshold: 5},
		{Name: "Knapsack Sprayer 16L", Category: "Equipment", PricePaise: 185000, CostPricePaise: 150000, Stock: 12, LowStockThreshold: 3},
	}
	ctx := context.Background()
	for _, req := range seed {
		if _, err := s.CreateProduct(ctx, req); err != nil {
			log.Fatalf("[memory-store] seed product %s: %v", req.Name, err)
		}
	}
	return s
}

func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if req.Name == "" || req.PricePaise < 0 || req.CostPricePaise < 0 || req.Stock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	p := domain.Product{
		ID:                s.nextProductID,
		Name:              req.Name,
		Category:          req.Category,
		PricePaise:        req.PricePaise,
		CostPricePaise:    req.CostPricePaise,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		SupplierID:        req.SupplierID,
	}
	s.products[p.ID] = p
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PricePaise < 0 || product.CostPricePaise < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Stock only moves through invoice commits.
	product.Stock = existing.Stock
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.Stock <= p.LowStockThreshold {
			low = append(low, p)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].Stock != low[j].Stock {
			return low[i].Stock < low[j].Stock
		}
		return low[i].Name < low[j].Name
	})
	return low, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	if req.Phone == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[req.Phone]; exists {
		return nil, store.ErrDuplicateKey
	}
	c := domain.Customer{
		Phone:            req.Phone,
		Name:             req.Name,
		Address:          req.Address,
		JoinedDate:       time.Now().UTC().Format(domain.DateLayout),
		CreditLimitPaise: req.CreditLimitPaise,
	}
	s.customers[c.Phone] = c
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Phone == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.Phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.JoinedDate = existing.JoinedDate
	s.customers[customer.Phone] = customer
	return &customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[phone]; !ok {
		return store.ErrNotFound
	}
	for _, t := range s.transactions {
		if t.CustomerPhone == phone {
			return store.ErrCustomerHasHistory
		}
	}
	delete(s.customers, phone)
	return nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSupplierID++
	sup := domain.Supplier{ID: s.nextSupplierID, Name: req.Name, Phone: req.Phone, Address: req.Address}
	s.suppliers[sup.ID] = sup
	return &sup, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliers, id)
	return nil
}

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
	for _, item := range invoice.Items {
		if item.Quantity < 1 || item.TotalPaise != int64(item.Quantity)*item.UnitPricePaise {
			return nil, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[header.InvoiceID]; exists {
		return nil, store.ErrDuplicateKey
	}

	// Validate every adjustment before touching anything, so a failed
	// commit leaves no partial state.
	for _, adj := range adjustments {
		p, ok := s.products[adj.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.Stock+adj.Delta < 0 {
			return nil, &store.StockExceededError{ProductID: adj.ProductID, Available: p.Stock}
		}
	}
	for _, adj := range adjustments {
		p := s.products[adj.ProductID]
		p.Stock += adj.Delta
		s.products[adj.ProductID] = p
	}

	items := make([]domain.InvoiceItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.InvoiceID = header.InvoiceID
		items = append(items, item)
	}
	s.transactions[header.InvoiceID] = header
	s.itemsByInvoice[header.InvoiceID] = items

	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	s.nextAuditID++
	audit.ID = s.nextAuditID
	s.auditLogs = append(s.auditLogs, audit)

	return &domain.Invoice{Header: header, Items: items}, nil
}

func (s *Store) FindInvoiceByID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	header, ok := s.transactions[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	items := make([]domain.InvoiceItem, len(s.itemsByInvoice[invoiceID]))
	copy(items, s.itemsByInvoice[invoiceID])
	return &domain.Invoice{Header: header, Items: items}, nil
}

func (s *Store) ListTransactions(ctx context.Context, from string, to string, limit int) ([]domain.Transaction, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if from != "" && t.Date < from {
			continue
		}
		if to != "" && t.Date > to {
			continue
		}
		txs = append(txs, t)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) CustomerStatement(ctx context.Context, phone string, from string, to string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[phone]; !ok {
		return nil, store.ErrNotFound
	}
	txs := make([]domain.Transaction, 0, 16)
	for _, t := range s.transactions {
		if t.CustomerPhone != phone {
			continue
		}
		if from != "" && t.Date < from {
			continue
		}
		if to != "" && t.Date > to {
			continue
		}
		txs = append(txs, t)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	return txs, nil
}

func (s *Store) CustomerDuePaise(ctx context.Context, phone string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due int64
	for _, t := range s.transactions {
		if t.CustomerPhone == phone {
			due += t.DuePaise
		}
	}
	return due, nil
}

func (s *Store) RecordPayment(ctx context.Context, invoiceID string, amountPaise int64) (*domain.Transaction, error) {
	if amountPaise < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[invoiceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.DuePaise < amountPaise {
		return nil, store.ErrInvalidInput
	}
	t.PaidPaise += amountPaise
	t.DuePaise -= amountPaise
	s.transactions[invoiceID] = t
	return &t, nil
}

func (s *Store) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if from != "" && e.Date < from {
			continue
		}
		if to != "" && e.Date > to {
			continue
		}
		expenses = append(expenses, e)
	}
	sort.Slice(expenses, func(i, j int) bool {
		if expenses[i].Date != expenses[j].Date {
			return expenses[i].Date > expenses[j].Date
		}
		return expenses[i].ID > expenses[j].ID
	})
	return expenses, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Category == "" || expense.AmountPaise < 1 {
		return nil, store.ErrInvalidInput
	}
	if expense.Date == "" {
		expense.Date = time.Now().UTC().Format(domain.DateLayout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextExpenseID++
	expense.ID = s.nextExpenseID
	s.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) DashboardMetrics(ctx context.Context, date string) (*domain.DashboardMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &domain.DashboardMetrics{Date: date}
	for _, t := range s.transactions {
		m.ReceivablesPaise += t.DuePaise
		if t.Date != date {
			continue
		}
		sign := int64(-1)
		if t.Type == domain.TxTypeSale {
			sign = 1
			m.RevenuePaise += t.TotalPaise
		}
		for _, item := range s.itemsByInvoice[t.InvoiceID] {
			m.GrossMarginPaise += sign * (item.UnitPricePaise - item.CostPricePaise) * int64(item.Quantity)
		}
	}
	for _, e := range s.expenses {
		if e.Date == date {
			m.ExpensesPaise += e.AmountPaise
		}
	}
	m.NetProfitPaise = m.GrossMarginPaise - m.ExpensesPaise
	return m, nil
}

func (s *Store) SalesTrend(ctx context.Context, days int) ([]domain.DailySales, error) {
	if days < 1 || days > 365 {
		days = 14
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := make(map[string]int64, days)
	for _, t := range s.transactions {
		if t.Type == domain.TxTypeSale {
			byDate[t.Date] += t.TotalPaise
		}
	}

	today := time.Now().UTC()
	trend := make([]domain.DailySales, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(domain.DateLayout)
		trend = append(trend, domain.DailySales{Date: date, SalesPaise: byDate[date]})
	}
	return trend, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	entry.ID = s.nextAuditID
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := s.users[key]; exists {
		return store.ErrDuplicateKey
	}
	s.users[key] = user
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[strings.ToLower(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Password hashes stay in the struct; the json tag keeps them out
	// of API responses and the auth layer needs them for bootstrap.
	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	if passwordHash == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	user, ok := s.users[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = passwordHash
	s.users[key] = user
	return nil
}
