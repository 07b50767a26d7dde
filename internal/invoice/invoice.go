// Package invoice renders committed invoices into printable documents:
// a plain-text preview and an ESC/POS byte stream for thermal printers.
package invoice

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bhatsaqibU/kkg-erp-live/internal/domain"
)

// Business is the letterhead stamped on every document.
type Business struct {
	Name    string
	Address string
	Phone   string
}

// DefaultBusiness returns the shop identity used when configuration
// leaves the letterhead unset.
func DefaultBusiness() Business {
	return Business{
		Name:    "KISAN KHIDMAT GHAR",
		Address: "Chakoora Pulwama, J&K",
		Phone:   "+91 9622749245",
	}
}

type Document struct {
	InvoiceID    string `json:"invoice_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

// FormatPaise renders an int64 paise amount as rupees with two decimal
// places, keeping the sign in front of the currency mark.
func FormatPaise(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}

// Render builds the printable document for a committed invoice. It is
// pure: everything it needs is already in the invoice.
func Render(business Business, inv domain.Invoice) Document {
	header := inv.Header

	title := "INVOICE"
	if header.Type == domain.TxTypeReturn {
		title = "RETURN MEMO"
	}

	lines := []string{
		business.Name,
		business.Address,
		business.Phone,
		"================================",
		title,
		"No: " + header.InvoiceID,
		"Date: " + header.Date,
	}
	if header.CustomerPhone != "" {
		lines = append(lines, "Customer: "+header.CustomerPhone)
	}
	lines = append(lines, "--------------------------------")
	for _, item := range inv.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.ProductName, item.Quantity))
		lines = append(lines, fmt.Sprintf("  %s @ %s", FormatPaise(item.TotalPaise), FormatPaise(item.UnitPricePaise)))
	}
	lines = append(lines,
		"--------------------------------",
		fmt.Sprintf("Total : %s", FormatPaise(header.TotalPaise)),
		fmt.Sprintf("Paid  : %s", FormatPaise(header.PaidPaise)),
		fmt.Sprintf("Due   : %s", FormatPaise(header.DuePaise)),
		fmt.Sprintf("Mode  : %s", header.PaymentMode),
		"================================",
		"Thank you, visit again",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return Document{
		InvoiceID:    header.InvoiceID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("invoice-%s.bin", header.InvoiceID),
	}
}
