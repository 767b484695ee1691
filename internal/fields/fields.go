// Package fields defines the canonical invoice field set and the coercion
// rules that turn raw extraction output into typed values.
//
// Every document that enters the pipeline is reduced to exactly one Fields
// value. Normalize is pure and total: no input causes it to fail, it degrades
// to nulls and defaults instead. Downstream sinks (the relational store and
// the ledger workbook) rely on that contract and never re-validate.
package fields

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical raw keys as emitted by the extraction model. The exact spellings
// are part of the extraction contract and are shared with the LLM prompt.
const (
	KeyInvoiceNumber   = "Invoice Number"
	KeyInvoiceDate     = "Invoice Date"
	KeyDueDate         = "Due Date"
	KeyVendorName      = "Vendor Name"
	KeyVendorAddress   = "Vendor Address"
	KeyPONumber        = "PO Number"
	KeyBillingPeriod   = "Billing Period"
	KeyAccountNumber   = "Account Number"
	KeyAccountName     = "Account Name"
	KeyAccountManager  = "Account Manager"
	KeyTaxCode         = "Tax Code"
	KeySubtotal        = "Subtotal"
	KeyTaxAmount       = "Tax Amount"
	KeyCurrency        = "Currency"
	KeyTotalAmount     = "Total Amount"
	KeyLineDescription = "Line Description"
)

// Keys lists all canonical keys in their documented order.
var Keys = []string{
	KeyInvoiceNumber, KeyInvoiceDate, KeyDueDate, KeyVendorName,
	KeyVendorAddress, KeyPONumber, KeyBillingPeriod, KeyAccountNumber,
	KeyAccountName, KeyAccountManager, KeyTaxCode, KeySubtotal,
	KeyTaxAmount, KeyCurrency, KeyTotalAmount, KeyLineDescription,
}

// Fields is the canonical invoice field set. String fields use "" for null;
// dates and amounts use nil pointers so absence stays distinguishable from
// zero values.
type Fields struct {
	InvoiceNumber string

	InvoiceDate *time.Time
	// InvoiceDateRaw keeps the original date text so the ledger writer can
	// pass an unparsable date through unchanged instead of blanking it.
	InvoiceDateRaw string
	DueDate        *time.Time

	VendorName    string
	VendorAddress string

	PONumber      string
	BillingPeriod string

	AccountNumber  string
	AccountName    string
	AccountManager string

	TaxCode string

	Subtotal    *decimal.Decimal
	TaxAmount   *decimal.Decimal
	TotalAmount *decimal.Decimal

	// Currency is an ISO-4217-like 3-letter code, derived from the raw
	// total amount string when the model does not supply one.
	Currency string

	// LineDescription is never empty after Normalize; it falls back to
	// "{vendor} — {invoice number}".
	LineDescription string
}

// amountPattern matches the first signed decimal number in a string after
// thousands separators have been stripped.
var amountPattern = regexp.MustCompile(`[-+]?\d+(\.\d+)?`)

// dateLayouts are tried in order by ParseDate. The list mirrors the formats
// vendors actually put on invoices rather than aiming for completeness.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02.01.2006",
}

// Normalize coerces a raw extraction mapping into a Fields value. Missing
// keys become nulls, unparsable dates become nil while keeping the raw text,
// and amounts keep only the first signed decimal number found. Normalize
// never fails; garbage input yields an all-null result.
func Normalize(raw map[string]any) Fields {
	f := Fields{
		InvoiceNumber:  cleanString(raw[KeyInvoiceNumber]),
		InvoiceDateRaw: cleanString(raw[KeyInvoiceDate]),
		VendorName:     cleanString(raw[KeyVendorName]),
		VendorAddress:  cleanString(raw[KeyVendorAddress]),
		PONumber:       cleanString(raw[KeyPONumber]),
		BillingPeriod:  cleanString(raw[KeyBillingPeriod]),
		AccountNumber:  cleanString(raw[KeyAccountNumber]),
		AccountName:    cleanString(raw[KeyAccountName]),
		AccountManager: cleanString(raw[KeyAccountManager]),
		TaxCode:        cleanString(raw[KeyTaxCode]),
	}

	f.InvoiceDate = ParseDate(f.InvoiceDateRaw)
	f.DueDate = ParseDate(cleanString(raw[KeyDueDate]))

	f.Subtotal = ParseAmount(rawString(raw[KeySubtotal]))
	f.TaxAmount = ParseAmount(rawString(raw[KeyTaxAmount]))
	f.TotalAmount = ParseAmount(rawString(raw[KeyTotalAmount]))

	f.Currency = DeriveCurrency(rawString(raw[KeyTotalAmount]), cleanString(raw[KeyCurrency]))

	f.LineDescription = cleanString(raw[KeyLineDescription])
	if f.LineDescription == "" {
		f.LineDescription = defaultLineDescription(f.VendorName, f.InvoiceNumber)
	}

	return f
}

// ParseDate parses free-text date representations permissively. Empty or
// unparsable input yields nil, never an error.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseAmount extracts the first signed decimal number from a free-text
// amount string, tolerating currency symbols and thousands separators.
// Absence of any numeric substring yields nil.
func ParseAmount(s string) *decimal.Decimal {
	s = strings.ReplaceAll(s, ",", "")
	m := amountPattern.FindString(s)
	if m == "" {
		return nil
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return nil
	}
	return &d
}

// currencySymbols maps symbols found in raw amount text to ISO codes.
// Checked in this order: a plain "$" wins over "C$" and "A$".
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
	{"C$", "CAD"},
	{"A$", "AUD"},
}

// DeriveCurrency resolves the currency code for an invoice. An explicit
// non-empty code wins, uppercased. Otherwise the raw amount string is
// inspected for currency symbols; a bare 3-letter token passed as the
// currency input is accepted uppercased. Anything else yields "".
func DeriveCurrency(amountRaw, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return strings.ToUpper(explicit)
	}
	if amountRaw == "" {
		return ""
	}
	for _, cs := range currencySymbols {
		if strings.Contains(amountRaw, cs.symbol) {
			return cs.code
		}
	}
	c := strings.ToUpper(strings.TrimSpace(amountRaw))
	if len(c) == 3 && !strings.ContainsAny(c, "0123456789") {
		return c
	}
	return ""
}

// defaultLineDescription builds the "{vendor} — {invoice number}" fallback,
// trimming stray separators when either side is missing.
func defaultLineDescription(vendor, invoiceNumber string) string {
	if vendor == "" {
		vendor = "Vendor"
	}
	return strings.Trim(vendor+" — "+invoiceNumber, " —")
}

// Map renders the canonical key set back into its raw mapping form: string
// values throughout, nil for nulls, dates in ISO form when parsed and amounts
// as bare numeric strings. Every canonical key is present in the output.
func (f Fields) Map() map[string]any {
	m := map[string]any{
		KeyInvoiceNumber:   nullable(f.InvoiceNumber),
		KeyInvoiceDate:     nullableDate(f.InvoiceDate, f.InvoiceDateRaw),
		KeyDueDate:         nullableDate(f.DueDate, ""),
		KeyVendorName:      nullable(f.VendorName),
		KeyVendorAddress:   nullable(f.VendorAddress),
		KeyPONumber:        nullable(f.PONumber),
		KeyBillingPeriod:   nullable(f.BillingPeriod),
		KeyAccountNumber:   nullable(f.AccountNumber),
		KeyAccountName:     nullable(f.AccountName),
		KeyAccountManager:  nullable(f.AccountManager),
		KeyTaxCode:         nullable(f.TaxCode),
		KeySubtotal:        nullableAmount(f.Subtotal),
		KeyTaxAmount:       nullableAmount(f.TaxAmount),
		KeyCurrency:        nullable(f.Currency),
		KeyTotalAmount:     nullableAmount(f.TotalAmount),
		KeyLineDescription: nullable(f.LineDescription),
	}
	return m
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableDate(t *time.Time, raw string) any {
	if t != nil {
		return t.Format("2006-01-02")
	}
	if raw != "" {
		return raw
	}
	return nil
}

func nullableAmount(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func cleanString(v any) string {
	return strings.TrimSpace(rawString(v))
}

// rawString renders any raw value as text without trimming, so symbol-based
// currency derivation still sees the original amount string.
func rawString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return decimal.NewFromFloat(s).String()
	case int:
		return decimal.NewFromInt(int64(s)).String()
	default:
		return ""
	}
}
