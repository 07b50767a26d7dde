package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/cache"
	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store"
	"github.com/bhatsaqibU/kkg-erp-live/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopMetricsCache{}, time.Minute)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})
}

func firstProduct(t *testing.T, svc *Service) domain.Product {
	t.Helper()
	products, err := svc.ListProducts(context.Background())
	if err != nil || len(products) == 0 {
		t.Fatalf("seeded products unavailable: %v", err)
	}
	return products[0]
}

func TestSaleFinalizeFullyPaid(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	p := firstProduct(t, svc)

	cart, err := svc.NewCart(domain.TxTypeSale)
	if err != nil {
		t.Fatalf("new cart: %v", err)
	}
	cart, err = svc.AddToCart(ctx, cart, p.ID, 2)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	cart, err = svc.AddToCart(ctx, cart, p.ID, 1)
	if err != nil {
		t.Fatalf("add to cart again: %v", err)
	}

	total := cart.TotalPaise()
	if total != 3*p.PricePaise {
		t.Fatalf("expected cart total %d, got %d", 3*p.PricePaise, total)
	}

	inv, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{PaidPaise: total, PaymentMode: "Cash"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if inv.Header.DuePaise != 0 || inv.Header.TotalPaise != total {
		t.Fatalf("unexpected header %+v", inv.Header)
	}
	if !strings.HasPrefix(inv.Header.InvoiceID, "INV-") {
		t.Fatalf("expected INV- prefix on sale, got %q", inv.Header.InvoiceID)
	}
	if inv.Header.CreatedBy != "staff" {
		t.Fatalf("expected creator staff, got %q", inv.Header.CreatedBy)
	}

	var lineSum int64
	for _, item := range inv.Items {
		lineSum += item.TotalPaise
	}
	if lineSum != total {
		t.Fatalf("line totals %d do not sum to header total %d", lineSum, total)
	}

	after, err := svc.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != p.Stock-3 {
		t.Fatalf("expected stock %d, got %d", p.Stock-3, after.Stock)
	}

	found, err := svc.FindInvoice(ctx, inv.Header.InvoiceID)
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	if len(found.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(found.Items))
	}
}

func TestCreditSaleLeavesDue(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	p := firstProduct(t, svc)

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Phone: "9622749245", Name: "Gh Hassan"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	cart, _ := svc.NewCart(domain.TxTypeSale)
	cart, err = svc.AddToCart(ctx, cart, p.ID, 4)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	inv, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{CustomerPhone: customer.Phone, PaidPaise: p.PricePaise, PaymentMode: "Credit"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	wantDue := 3 * p.PricePaise
	if inv.Header.DuePaise != wantDue {
		t.Fatalf("expected due %d, got %d", wantDue, inv.Header.DuePaise)
	}

	statement, due, err := svc.CustomerStatement(ctx, customer.Phone, "", "")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(statement) != 1 || due != wantDue {
		t.Fatalf("expected 1 row with due %d, got %d rows due %d", wantDue, len(statement), due)
	}

	windowed, _, err := svc.CustomerStatement(ctx, customer.Phone, "2000-01-01", "2000-01-02")
	if err != nil {
		t.Fatalf("windowed statement: %v", err)
	}
	if len(windowed) != 0 {
		t.Fatalf("expected empty statement outside the window, got %d rows", len(windowed))
	}

	updated, err := svc.RecordPayment(ctx, inv.Header.InvoiceID, wantDue)
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if updated.DuePaise != 0 {
		t.Fatalf("expected settled due, got %d", updated.DuePaise)
	}
}

func TestReturnRestocksAndNegatesTotals(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	p := firstProduct(t, svc)

	sale, _ := svc.NewCart(domain.TxTypeSale)
	sale, err := svc.AddToCart(ctx, sale, p.ID, 5)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if _, err := svc.Finalize(ctx, sale, domain.FinalizeRequest{PaidPaise: 5 * p.PricePaise, PaymentMode: "Cash"}); err != nil {
		t.Fatalf("sale: %v", err)
	}

	ret, _ := svc.NewCart(domain.TxTypeReturn)
	ret, err = svc.AddToCart(ctx, ret, p.ID, 2)
	if err != nil {
		t.Fatalf("add return line: %v", err)
	}
	inv, err := svc.Finalize(ctx, ret, domain.FinalizeRequest{PaymentMode: "Cash"})
	if err != nil {
		t.Fatalf("finalize return: %v", err)
	}
	if inv.Header.TotalPaise != -2*p.PricePaise || inv.Header.DuePaise != 0 {
		t.Fatalf("unexpected return header %+v", inv.Header)
	}
	if !strings.HasPrefix(inv.Header.InvoiceID, "RET-") {
		t.Fatalf("expected RET- prefix on return, got %q", inv.Header.InvoiceID)
	}

	after, err := svc.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != p.Stock-3 {
		t.Fatalf("expected stock %d after sale 5 return 2, got %d", p.Stock-3, after.Stock)
	}
}

func TestCreditReturnCarriesNegativeDue(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	p := firstProduct(t, svc)

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Phone: "7006000003", Name: "Abdul Rashid"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	sale, _ := svc.NewCart(domain.TxTypeSale)
	sale, err = svc.AddToCart(ctx, sale, p.ID, 3)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if _, err := svc.Finalize(ctx, sale, domain.FinalizeRequest{CustomerPhone: customer.Phone, PaidPaise: 0, PaymentMode: "Credit"}); err != nil {
		t.Fatalf("credit sale: %v", err)
	}

	ret, _ := svc.NewCart(domain.TxTypeReturn)
	ret, err = svc.AddToCart(ctx, ret, p.ID, 1)
	if err != nil {
		t.Fatalf("add return line: %v", err)
	}
	inv, err := svc.Finalize(ctx, ret, domain.FinalizeRequest{CustomerPhone: customer.Phone, PaymentMode: "Credit"})
	if err != nil {
		t.Fatalf("credit return: %v", err)
	}
	if inv.Header.PaidPaise != 0 {
		t.Fatalf("credit return must not pay cash out, got paid %d", inv.Header.PaidPaise)
	}
	if inv.Header.DuePaise != -p.PricePaise {
		t.Fatalf("expected negative due %d, got %d", -p.PricePaise, inv.Header.DuePaise)
	}

	_, due, err := svc.CustomerStatement(ctx, customer.Phone, "", "")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if due != 2*p.PricePaise {
		t.Fatalf("expected balance reduced to %d, got %d", 2*p.PricePaise, due)
	}
}

func TestCartRejectsOversell(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	p := firstProduct(t, svc)

	cart, _ := svc.NewCart(domain.TxTypeSale)
	cart, err := svc.AddToCart(ctx, cart, p.ID, p.Stock)
	if err != nil {
		t.Fatalf("fill cart to stock: %v", err)
	}

	_, err = svc.AddToCart(ctx, cart, p.ID, 1)
	var stockErr *store.StockExceededError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockExceededError, got %v", err)
	}
	if stockErr.Available != 0 {
		t.Fatalf("expected 0 available beyond cart, got %d", stockErr.Available)
	}
}

func TestFinalizeValidation(t *testing.T) {
	svc := newTestService()
	ctx := staffCtx()
	p := firstProduct(t, svc)

	empty, _ := svc.NewCart(domain.TxTypeSale)
	if _, err := svc.Finalize(ctx, empty, domain.FinalizeRequest{PaymentMode: "Cash"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected empty cart rejection, got %v", err)
	}

	cart, _ := svc.NewCart(domain.TxTypeSale)
	cart, err := svc.AddToCart(ctx, cart, p.ID, 1)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	if _, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{PaymentMode: "Barter"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown payment mode rejection, got %v", err)
	}
	if _, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{PaymentMode: "Credit"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected credit without customer rejection, got %v", err)
	}
	if _, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{CustomerPhone: "0000000000", PaymentMode: "Cash"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown customer rejection, got %v", err)
	}
	if _, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{PaidPaise: p.PricePaise + 1, PaymentMode: "Cash"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected overpayment rejection, got %v", err)
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{Name: "Gypsum 50kg", PricePaise: 40000}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected staff product create to fail, got %v", err)
	}
	if _, err := svc.ListAuditLogs(staffCtx(), time.Time{}, time.Time{}, 10); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected staff audit access to fail, got %v", err)
	}

	created, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Name: "Gypsum 50kg", Category: "Fertilizer", PricePaise: 40000, CostPricePaise: 34000, Stock: 10})
	if err != nil {
		t.Fatalf("admin product create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected assigned product id")
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 || logs[0].Action != "product_create" {
		t.Fatalf("expected product_create audit entry, got %+v", logs)
	}
}

// countingCache records cache traffic so tests can observe hits.
type countingCache struct {
	mu      sync.Mutex
	store   map[string]*domain.DashboardMetrics
	gets    int
	sets    int
	deletes int
}

func newCountingCache() *countingCache {
	return &countingCache{store: map[string]*domain.DashboardMetrics{}}
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.DashboardMetrics, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.store[key]
	return v, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.DashboardMetrics, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.store[key] = value
	return nil
}

func (c *countingCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.store, key)
	return nil
}

func TestDashboardCachesAndInvalidates(t *testing.T) {
	cc := newCountingCache()
	svc := New(memory.NewSeeded(), cc, time.Minute)
	ctx := staffCtx()
	p := firstProduct(t, svc)

	today := time.Now().UTC().Format(domain.DateLayout)

	first, err := svc.Dashboard(ctx, today)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if first.RevenuePaise != 0 {
		t.Fatalf("expected empty day, got revenue %d", first.RevenuePaise)
	}
	if cc.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", cc.sets)
	}

	if _, err := svc.Dashboard(ctx, today); err != nil {
		t.Fatalf("dashboard cached read: %v", err)
	}
	if cc.sets != 1 {
		t.Fatalf("cached read should not refill, sets=%d", cc.sets)
	}

	cart, _ := svc.NewCart(domain.TxTypeSale)
	cart, err = svc.AddToCart(ctx, cart, p.ID, 1)
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if _, err := svc.Finalize(ctx, cart, domain.FinalizeRequest{PaidPaise: p.PricePaise, PaymentMode: "UPI"}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cc.deletes == 0 {
		t.Fatalf("finalize should invalidate the day's metrics")
	}

	refreshed, err := svc.Dashboard(ctx, today)
	if err != nil {
		t.Fatalf("dashboard after sale: %v", err)
	}
	if refreshed.RevenuePaise != p.PricePaise {
		t.Fatalf("expected revenue %d after sale, got %d", p.PricePaise, refreshed.RevenuePaise)
	}

	if _, err := svc.Dashboard(ctx, "31-12-2025"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected malformed date rejection, got %v", err)
	}
}
