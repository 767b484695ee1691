package fields

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // "" means nil expected
	}{
		{"plain", "1234.56", "1234.56"},
		{"currency symbol and commas", "$1,234.56", "1234.56"},
		{"euro symbol", "€580.00", "580"},
		{"negative", "-42.50", "-42.5"},
		{"explicit plus", "+10", "10"},
		{"embedded text", "Total due: 99.95 USD", "99.95"},
		{"no digits", "N/A", ""},
		{"empty", "", ""},
		{"only symbols", "$€£", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			want, err := decimal.NewFromString(tt.want)
			require.NoError(t, err)
			assert.True(t, got.Equal(want), "got %s want %s", got, want)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // "" means nil expected, else YYYY-MM-DD
	}{
		{"iso", "2025-03-01", "2025-03-01"},
		{"slash iso", "2025/03/01", "2025-03-01"},
		{"us slashes", "03/01/2025", "2025-03-01"},
		{"iso with time", "2025-03-01 10:30:00", "2025-03-01"},
		{"month name", "March 1, 2025", "2025-03-01"},
		{"unparsable", "sometime next week", ""},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDate(tt.input)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestDeriveCurrency(t *testing.T) {
	tests := []struct {
		name      string
		amountRaw string
		explicit  string
		want      string
	}{
		{"dollar symbol", "$1,234.56", "", "USD"},
		{"explicit lowercase code", "1234", "cad", "CAD"},
		{"no signal", "1234", "", ""},
		{"euro symbol", "€99.00", "", "EUR"},
		{"pound symbol", "£10", "", "GBP"},
		{"rupee symbol", "₹500", "", "INR"},
		// a plain "$" outranks the "C$" composite, so C$ amounts read as USD
		{"canadian composite", "C$50.00", "", "USD"},
		{"bare code as amount", "GBP", "", "GBP"},
		{"explicit wins over symbol", "$100", "eur", "EUR"},
		{"empty everything", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveCurrency(tt.amountRaw, tt.explicit))
		})
	}
}

func TestNormalizeFullInput(t *testing.T) {
	raw := map[string]any{
		"Invoice Number":   "INV-101905",
		"Invoice Date":     "2025-08-05",
		"Due Date":         "2025-08-24",
		"Vendor Name":      "Scott Inc",
		"Vendor Address":   "123 Example St, Toronto, ON",
		"PO Number":        "PO-77831",
		"Billing Period":   "2025-07",
		"Account Number":   "5850133469",
		"Account Name":     "Innovate Wireless Partnerships",
		"Account Manager":  "Cody Burke",
		"Tax Code":         "VAT-20%",
		"Subtotal":         "680.00",
		"Tax Amount":       "34.00",
		"Currency":         "CAD",
		"Total Amount":     "714.00",
		"Line Description": "Scott Inc — INV-101905",
	}

	f := Normalize(raw)

	assert.Equal(t, "INV-101905", f.InvoiceNumber)
	require.NotNil(t, f.InvoiceDate)
	assert.Equal(t, "2025-08-05", f.InvoiceDate.Format("2006-01-02"))
	require.NotNil(t, f.DueDate)
	assert.Equal(t, "2025-08-24", f.DueDate.Format("2006-01-02"))
	assert.Equal(t, "Scott Inc", f.VendorName)
	assert.Equal(t, "CAD", f.Currency)
	require.NotNil(t, f.TotalAmount)
	assert.True(t, f.TotalAmount.Equal(decimal.RequireFromString("714.00")))
	require.NotNil(t, f.Subtotal)
	require.NotNil(t, f.TaxAmount)
	assert.Equal(t, "Scott Inc — INV-101905", f.LineDescription)
}

func TestNormalizeEmptyInput(t *testing.T) {
	f := Normalize(map[string]any{})

	assert.Empty(t, f.InvoiceNumber)
	assert.Nil(t, f.InvoiceDate)
	assert.Nil(t, f.DueDate)
	assert.Nil(t, f.Subtotal)
	assert.Nil(t, f.TaxAmount)
	assert.Nil(t, f.TotalAmount)
	assert.Empty(t, f.Currency)
	// line description degrades to the bare vendor placeholder
	assert.Equal(t, "Vendor", f.LineDescription)
}

func TestNormalizeNilValues(t *testing.T) {
	raw := map[string]any{
		"Invoice Number": nil,
		"Total Amount":   nil,
		"Vendor Name":    nil,
	}
	f := Normalize(raw)
	assert.Empty(t, f.InvoiceNumber)
	assert.Nil(t, f.TotalAmount)
	assert.Equal(t, "Vendor", f.LineDescription)
}

func TestNormalizeLineDescriptionFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{
			"vendor and number",
			map[string]any{"Vendor Name": "Acme", "Invoice Number": "INV-500"},
			"Acme — INV-500",
		},
		{
			"number only",
			map[string]any{"Invoice Number": "INV-500"},
			"Vendor — INV-500",
		},
		{
			"vendor only trims the dangling separator",
			map[string]any{"Vendor Name": "Acme"},
			"Acme",
		},
		{
			"explicit description wins",
			map[string]any{"Vendor Name": "Acme", "Line Description": "Monthly hosting"},
			"Monthly hosting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw).LineDescription)
		})
	}
}

func TestNormalizeDerivesCurrencyFromAmount(t *testing.T) {
	f := Normalize(map[string]any{"Total Amount": "$1,234.56"})
	assert.Equal(t, "USD", f.Currency)
	require.NotNil(t, f.TotalAmount)
	assert.True(t, f.TotalAmount.Equal(decimal.RequireFromString("1234.56")))
}

func TestNormalizeKeepsRawDateWhenUnparsable(t *testing.T) {
	f := Normalize(map[string]any{"Invoice Date": "Q3 FY25"})
	assert.Nil(t, f.InvoiceDate)
	assert.Equal(t, "Q3 FY25", f.InvoiceDateRaw)
}

func TestNormalizeNumericJSONValues(t *testing.T) {
	// models sometimes return bare JSON numbers despite the contract
	f := Normalize(map[string]any{"Total Amount": 714.5, "Tax Amount": 34})
	require.NotNil(t, f.TotalAmount)
	assert.True(t, f.TotalAmount.Equal(decimal.RequireFromString("714.5")))
	require.NotNil(t, f.TaxAmount)
	assert.True(t, f.TaxAmount.Equal(decimal.NewFromInt(34)))
}

func TestMapContainsEveryCanonicalKey(t *testing.T) {
	m := Normalize(map[string]any{}).Map()
	for _, k := range Keys {
		_, ok := m[k]
		assert.True(t, ok, "missing key %q", k)
	}
	assert.Len(t, m, len(Keys))
}

func TestMapRoundTrip(t *testing.T) {
	d := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := Fields{
		InvoiceNumber:   "INV-1",
		InvoiceDate:     &d,
		VendorName:      "Acme",
		Currency:        "USD",
		LineDescription: "Acme — INV-1",
	}
	g := Normalize(f.Map())
	assert.Equal(t, f.InvoiceNumber, g.InvoiceNumber)
	require.NotNil(t, g.InvoiceDate)
	assert.True(t, g.InvoiceDate.Equal(d))
	assert.Equal(t, f.Currency, g.Currency)
	assert.Equal(t, f.LineDescription, g.LineDescription)
}
