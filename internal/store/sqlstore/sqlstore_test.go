package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/dbx"
	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
	"github.com/bhatsaqibU/kkg-erp-live/internal/xid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, filepath.Join(t.TempDir(), "store.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProduct(t *testing.T, s *Store, name string, pricePaise, costPaise int64, stock int) *domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:              name,
		Category:          "Fertilizer",
		PricePaise:        pricePaise,
		CostPricePaise:    costPaise,
		Stock:             stock,
		LowStockThreshold: 2,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func saleInvoice(p *domain.Product, qty int, paidPaise int64) (domain.Invoice, []domain.StockAdjustment) {
	total := int64(qty) * p.PricePaise
	header := domain.Transaction{
		InvoiceID:   xid.New("INV"),
		Date:        time.Now().UTC().Format(domain.DateLayout),
		Type:        domain.TxTypeSale,
		TotalPaise:  total,
		PaidPaise:   paidPaise,
		DuePaise:    total - paidPaise,
		PaymentMode: "Cash",
		CreatedBy:   "admin",
		CreatedAt:   time.Now().UTC(),
	}
	items := []domain.InvoiceItem{{
		ProductName:    p.Name,
		Quantity:       qty,
		UnitPricePaise: p.PricePaise,
		CostPricePaise: p.CostPricePaise,
		TotalPaise:     total,
	}}
	return domain.Invoice{Header: header, Items: items},
		[]domain.StockAdjustment{{ProductID: p.ID, Delta: -qty}}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, filepath.Join(t.TempDir(), "store.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("second ensure on an initialized file: %v", err)
	}

	s := New(db)
	p := seedProduct(t, s, "Urea 45kg", 30000, 26000, 5)
	if p.ID == 0 {
		t.Fatalf("expected usable store after repeated ensure")
	}
}

func TestCreateInvoiceAdjustsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "Urea 45kg", 30000, 26000, 10)
	inv, adjustments := saleInvoice(p, 3, 90000)

	created, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if len(created.Items) != 1 || created.Items[0].ID == 0 {
		t.Fatalf("expected persisted item with id, got %+v", created.Items)
	}

	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", after.Stock)
	}

	found, err := s.FindInvoiceByID(ctx, inv.Header.InvoiceID)
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	if found.Header.TotalPaise != 90000 || found.Header.DuePaise != 0 {
		t.Fatalf("unexpected header %+v", found.Header)
	}
	if found.Items[0].TotalPaise != int64(found.Items[0].Quantity)*found.Items[0].UnitPricePaise {
		t.Fatalf("line total invariant broken: %+v", found.Items[0])
	}

	logs, err := s.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "invoice.create" {
		t.Fatalf("expected one audit row from commit, got %+v", logs)
	}
}

func TestCreateInvoiceRejectsOversellAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "DAP 50kg", 145000, 132000, 2)
	inv, adjustments := saleInvoice(p, 5, 0)
	inv.Header.DuePaise = inv.Header.TotalPaise

	_, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "staff", Action: "invoice.create"})
	var stockErr *store.StockExceededError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockExceededError, got %v", err)
	}
	if stockErr.ProductID != p.ID || stockErr.Available != 2 {
		t.Fatalf("unexpected error detail %+v", stockErr)
	}

	// The failed commit must leave no trace.
	if _, err := s.FindInvoiceByID(ctx, inv.Header.InvoiceID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no header persisted, got %v", err)
	}
	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("stock mutated by failed commit: %d", after.Stock)
	}
	logs, err := s.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no audit rows from failed commit, got %d", len(logs))
	}
}

func TestCreateInvoiceDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "MOP 50kg", 90000, 81000, 20)
	inv, adjustments := saleInvoice(p, 1, 90000)

	if _, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestConcurrentSalesCannotOversell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "Zinc Sulphate 10kg", 42000, 36000, 5)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv, adjustments := saleInvoice(p, 3, int64(3)*p.PricePaise)
			_, errs[i] = s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "staff", Action: "invoice.create"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *store.StockExceededError
		if !errors.As(err, &stockErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one sale of 3 units from stock 5, got %d", succeeded)
	}

	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("expected stock 2 after the single winning sale, got %d", after.Stock)
	}
}

func TestReturnNegatesLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "Seed Potato 25kg", 60000, 48000, 10)
	customer, err := s.CreateCustomer(ctx, domain.CustomerCreateRequest{Phone: "9622749245", Name: "Gh Hassan"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	sale, saleAdj := saleInvoice(p, 4, 100000)
	sale.Header.CustomerPhone = customer.Phone
	if _, err := s.CreateInvoice(ctx, sale, saleAdj, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	retTotal := int64(2) * p.PricePaise
	ret := domain.Invoice{
		Header: domain.Transaction{
			InvoiceID:     xid.New("INV"),
			CustomerPhone: customer.Phone,
			Date:          time.Now().UTC().Format(domain.DateLayout),
			Type:          domain.TxTypeReturn,
			TotalPaise:    -retTotal,
			PaidPaise:     -retTotal,
			DuePaise:      0,
			PaymentMode:   "Cash",
			CreatedBy:     "admin",
			CreatedAt:     time.Now().UTC(),
		},
		Items: []domain.InvoiceItem{{
			ProductName:    p.Name,
			Quantity:       2,
			UnitPricePaise: p.PricePaise,
			CostPricePaise: p.CostPricePaise,
			TotalPaise:     retTotal,
		}},
	}
	if _, err := s.CreateInvoice(ctx, ret, []domain.StockAdjustment{{ProductID: p.ID, Delta: 2}}, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
		t.Fatalf("return: %v", err)
	}

	after, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 8 {
		t.Fatalf("expected stock restocked to 8, got %d", after.Stock)
	}

	due, err := s.CustomerDuePaise(ctx, customer.Phone)
	if err != nil {
		t.Fatalf("customer due: %v", err)
	}
	if due != 140000 {
		t.Fatalf("expected due 140000 paise (sale due untouched by cash return), got %d", due)
	}

	statement, err := s.CustomerStatement(ctx, customer.Phone, "", "")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(statement) != 2 {
		t.Fatalf("expected 2 statement rows, got %d", len(statement))
	}
	totalsByType := map[string]int64{}
	for _, row := range statement {
		totalsByType[row.Type] = row.TotalPaise
	}
	if totalsByType[domain.TxTypeSale] != 240000 || totalsByType[domain.TxTypeReturn] != -retTotal {
		t.Fatalf("unexpected statement rows %+v", statement)
	}

	today := time.Now().UTC().Format(domain.DateLayout)
	windowed, err := s.CustomerStatement(ctx, customer.Phone, today, today)
	if err != nil {
		t.Fatalf("windowed statement: %v", err)
	}
	if len(windowed) != 2 {
		t.Fatalf("expected both rows inside today's window, got %d", len(windowed))
	}
	empty, err := s.CustomerStatement(ctx, customer.Phone, "2000-01-01", "2000-01-02")
	if err != nil {
		t.Fatalf("windowed statement: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty statement outside the window, got %d rows", len(empty))
	}
}

func TestRecordPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "NPK 12:32:16", 155000, 140000, 10)
	inv, adjustments := saleInvoice(p, 2, 100000)
	if _, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	// Due is 210000.

	if _, err := s.RecordPayment(ctx, inv.Header.InvoiceID, 999999); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected overpayment to be rejected, got %v", err)
	}
	updated, err := s.RecordPayment(ctx, inv.Header.InvoiceID, 110000)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if updated.PaidPaise != 210000 || updated.DuePaise != 100000 {
		t.Fatalf("unexpected header after payment %+v", updated)
	}
	if updated.DuePaise != updated.TotalPaise-updated.PaidPaise {
		t.Fatalf("due invariant broken: %+v", updated)
	}
	if _, err := s.RecordPayment(ctx, "INV-missing", 100); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown invoice, got %v", err)
	}
}

func TestDeleteCustomerWithHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "Mancozeb 1kg", 28000, 23000, 10)
	customer, err := s.CreateCustomer(ctx, domain.CustomerCreateRequest{Phone: "7006000001", Name: "Bashir Ahmad"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	inv, adjustments := saleInvoice(p, 1, 28000)
	inv.Header.CustomerPhone = customer.Phone
	if _, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	if err := s.DeleteCustomer(ctx, customer.Phone); !errors.Is(err, store.ErrCustomerHasHistory) {
		t.Fatalf("expected ErrCustomerHasHistory, got %v", err)
	}
	if _, err := s.GetCustomer(ctx, customer.Phone); err != nil {
		t.Fatalf("guarded customer must survive the refused delete: %v", err)
	}

	fresh, err := s.CreateCustomer(ctx, domain.CustomerCreateRequest{Phone: "7006000002", Name: "New Walkin"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if err := s.DeleteCustomer(ctx, fresh.Phone); err != nil {
		t.Fatalf("delete customer without history: %v", err)
	}
	if err := s.DeleteCustomer(ctx, fresh.Phone); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDashboardMetricsAndTrend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	today := time.Now().UTC().Format(domain.DateLayout)

	p := seedProduct(t, s, "Urea 45kg", 30000, 26000, 50)
	inv, adjustments := saleInvoice(p, 10, 200000)
	if _, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
		t.Fatalf("sale: %v", err)
	}
	if _, err := s.CreateExpense(ctx, domain.Expense{Date: today, Category: "Transport", AmountPaise: 15000, AddedBy: "admin"}); err != nil {
		t.Fatalf("expense: %v", err)
	}

	m, err := s.DashboardMetrics(ctx, today)
	if err != nil {
		t.Fatalf("dashboard metrics: %v", err)
	}
	if m.RevenuePaise != 300000 {
		t.Fatalf("expected revenue 300000, got %d", m.RevenuePaise)
	}
	if m.ExpensesPaise != 15000 {
		t.Fatalf("expected expenses 15000, got %d", m.ExpensesPaise)
	}
	if m.ReceivablesPaise != 100000 {
		t.Fatalf("expected receivables 100000, got %d", m.ReceivablesPaise)
	}
	// Margin is (30000-26000)*10 = 40000; profit is margin minus expenses.
	if m.GrossMarginPaise != 40000 || m.NetProfitPaise != 25000 {
		t.Fatalf("unexpected margin/profit %d/%d", m.GrossMarginPaise, m.NetProfitPaise)
	}

	trend, err := s.SalesTrend(ctx, 14)
	if err != nil {
		t.Fatalf("sales trend: %v", err)
	}
	if len(trend) != 14 {
		t.Fatalf("expected 14 trend points, got %d", len(trend))
	}
	if trend[13].Date != today || trend[13].SalesPaise != 300000 {
		t.Fatalf("expected today's point last with 300000, got %+v", trend[13])
	}
	for _, point := range trend[:13] {
		if point.SalesPaise != 0 {
			t.Fatalf("expected zero-filled history, got %+v", point)
		}
	}
}

func TestListTransactionsDateWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, "Carbendazim 500g", 19000, 15000, 30)
	for i := 0; i < 3; i++ {
		inv, adjustments := saleInvoice(p, 1, 19000)
		inv.Header.InvoiceID = fmt.Sprintf("INV-window-%d", i)
		if _, err := s.CreateInvoice(ctx, inv, adjustments, domain.AuditLog{Username: "admin", Action: "invoice.create"}); err != nil {
			t.Fatalf("sale %d: %v", i, err)
		}
	}

	today := time.Now().UTC().Format(domain.DateLayout)
	txs, err := s.ListTransactions(ctx, today, today, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions in window, got %d", len(txs))
	}

	empty, err := s.ListTransactions(ctx, "2000-01-01", "2000-01-02", 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty window, got %d", len(empty))
	}
}
