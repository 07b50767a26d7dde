package invoice

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
)

func TestFormatPaise(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "\u20b90.00"},
		{30000, "\u20b9300.00"},
		{145050, "\u20b91450.50"},
		{-90000, "-\u20b9900.00"},
		{5, "\u20b90.05"},
	}
	for _, c := range cases {
		if got := FormatPaise(c.in); got != c.want {
			t.Fatalf("FormatPaise(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderSale(t *testing.T) {
	doc := Render(DefaultBusiness(), domain.Invoice{
		Header: domain.Transaction{
			InvoiceID:     "INV-1-abc",
			CustomerPhone: "9622749245",
			Date:          "2026-08-28",
			Type:          domain.TxTypeSale,
			TotalPaise:    90000,
			PaidPaise:     50000,
			DuePaise:      40000,
			PaymentMode:   "Credit",
			CreatedAt:     time.Now().UTC(),
		},
		Items: []domain.InvoiceItem{
			{ProductName: "Urea 45kg", Quantity: 3, UnitPricePaise: 30000, TotalPaise: 90000},
		},
	})

	if doc.InvoiceID != "INV-1-abc" || doc.FileName != "invoice-INV-1-abc.bin" {
		t.Fatalf("unexpected identity fields %+v", doc)
	}
	for _, want := range []string{"KISAN KHIDMAT GHAR", "INVOICE", "INV-1-abc", "Urea 45kg x3", "Due   : \u20b9400.00", "Customer: 9622749245"} {
		if !strings.Contains(doc.PreviewText, want) {
			t.Fatalf("preview missing %q:\n%s", want, doc.PreviewText)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(doc.EscposBase64)
	if err != nil {
		t.Fatalf("decode escpos: %v", err)
	}
	if len(raw) < 6 || raw[0] != 0x1b || raw[1] != 0x40 {
		t.Fatalf("escpos stream missing init sequence")
	}
	tail := raw[len(raw)-4:]
	if tail[0] != 0x1d || tail[1] != 0x56 || tail[2] != 0x41 || tail[3] != 0x10 {
		t.Fatalf("escpos stream missing cut sequence, tail %v", tail)
	}
}

func TestRenderReturnUsesMemoTitle(t *testing.T) {
	doc := Render(DefaultBusiness(), domain.Invoice{
		Header: domain.Transaction{
			InvoiceID:   "INV-2-def",
			Date:        "2026-08-28",
			Type:        domain.TxTypeReturn,
			TotalPaise:  -60000,
			PaidPaise:   -60000,
			PaymentMode: "Cash",
		},
		Items: []domain.InvoiceItem{
			{ProductName: "Seed Potato 25kg", Quantity: 1, UnitPricePaise: 60000, TotalPaise: 60000},
		},
	})

	if !strings.Contains(doc.PreviewText, "RETURN MEMO") {
		t.Fatalf("expected return memo title:\n%s", doc.PreviewText)
	}
	if !strings.Contains(doc.PreviewText, "Total : -\u20b9600.00") {
		t.Fatalf("expected negated total:\n%s", doc.PreviewText)
	}
	if strings.Contains(doc.PreviewText, "Customer:") {
		t.Fatalf("walk-in return should not print a customer line")
	}
}
