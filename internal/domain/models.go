package domain

import "time"

// Transaction types for the invoice header. Totals on a RETURN are
// recorded as negated magnitudes of the returned goods.
const (
	TxTypeSale   = "SALE"
	TxTypeReturn = "RETURN"
)

// DateLayout is the calendar-day format used by the ledger tables.
const DateLayout = "2006-01-02"

// Product is master data. Stock is mutated only through invoice commits
// and must never go negative. All money values are int64 paise.
type Product struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	PricePaise        int64  `json:"price_paise"`
	CostPricePaise    int64  `json:"cost_price_paise"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	SupplierID        *int64 `json:"supplier_id,omitempty"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Category          string `json:"category"`
	PricePaise        int64  `json:"price_paise"`
	CostPricePaise    int64  `json:"cost_price_paise"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	SupplierID        *int64 `json:"supplier_id,omitempty"`
}

// Customer uses the phone number as its primary key, kept for
// compatibility with the historical ledger.
type Customer struct {
	Phone            string `json:"phone"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	JoinedDate       string `json:"joined_date"`
	CreditLimitPaise int64  `json:"credit_limit_paise"`
}

type CustomerCreateRequest struct {
	Phone            string `json:"phone"`
	Name             string `json:"name"`
	Address          string `json:"address"`
	CreditLimitPaise int64  `json:"credit_limit_paise"`
}

type Supplier struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Transaction is the invoice header. After commit only settlements
// move PaidPaise and DuePaise; every other field is immutable.
// Invariant: DuePaise == TotalPaise - PaidPaise.
type Transaction struct {
	InvoiceID     string    `json:"invoice_id"`
	CustomerPhone string    `json:"customer_phone"`
	Date          string    `json:"date"`
	Type          string    `json:"type"`
	TotalPaise    int64     `json:"total_paise"`
	PaidPaise     int64     `json:"paid_paise"`
	DuePaise      int64     `json:"due_paise"`
	PaymentMode   string    `json:"payment_mode"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// InvoiceItem is one line of an invoice. ProductName is denormalized on
// purpose: renaming a product must not rewrite historical invoices.
// Invariant at creation: TotalPaise == Quantity * UnitPricePaise.
type InvoiceItem struct {
	ID             int64  `json:"id"`
	InvoiceID      string `json:"invoice_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPricePaise int64  `json:"unit_price_paise"`
	CostPricePaise int64  `json:"cost_price_paise"`
	TotalPaise     int64  `json:"total_paise"`
}

// Invoice is a committed header plus its ordered line items. This is
// the unit handed to the invoice formatter.
type Invoice struct {
	Header Transaction   `json:"header"`
	Items  []InvoiceItem `json:"items"`
}

// CartLine is a client-local, not-yet-persisted invoice line. It keeps
// the product id so the commit can adjust stock, while the snapshot
// fields become the denormalized invoice_items row.
type CartLine struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPricePaise int64  `json:"unit_price_paise"`
	CostPricePaise int64  `json:"cost_price_paise"`
	TotalPaise     int64  `json:"total_paise"`
}

// Cart accumulates lines for one SALE or RETURN before finalize.
type Cart struct {
	Type  string     `json:"type"`
	Lines []CartLine `json:"lines"`
}

// QuantityOf sums the quantity already carted for a product.
func (c *Cart) QuantityOf(productID int64) int {
	total := 0
	for _, line := range c.Lines {
		if line.ProductID == productID {
			total += line.Quantity
		}
	}
	return total
}

// TotalPaise sums the line totals as positive magnitudes; finalize
// negates for returns.
func (c *Cart) TotalPaise() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.TotalPaise
	}
	return total
}

// StockAdjustment is a signed stock delta applied inside the invoice
// commit: negative for sales, positive for returns.
type StockAdjustment struct {
	ProductID int64
	Delta     int
}

type FinalizeRequest struct {
	CustomerPhone string `json:"customer_phone"`
	PaidPaise     int64  `json:"paid_paise"`
	PaymentMode   string `json:"payment_mode"`
}

type Expense struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	AmountPaise int64  `json:"amount_paise"`
	Note        string `json:"note"`
	AddedBy     string `json:"added_by"`
}

type ExpenseCreateRequest struct {
	Category    string `json:"category"`
	AmountPaise int64  `json:"amount_paise"`
	Note        string `json:"note"`
}

// AuditLog rows are append-only and never mutated.
type AuditLog struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

// DashboardMetrics is the read-side summary for one calendar day.
// NetProfitPaise uses the cost-aware formula: gross margin minus expenses.
type DashboardMetrics struct {
	Date             string `json:"date"`
	RevenuePaise     int64  `json:"revenue_paise"`
	ExpensesPaise    int64  `json:"expenses_paise"`
	ReceivablesPaise int64  `json:"receivables_paise"`
	GrossMarginPaise int64  `json:"gross_margin_paise"`
	NetProfitPaise   int64  `json:"net_profit_paise"`
}

// DailySales is one point of the dashboard trend series.
type DailySales struct {
	Date       string `json:"date"`
	SalesPaise int64  `json:"sales_paise"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies who is performing an operation; carried in context.
type Actor struct {
	Username string
	Role     string
}
