// Package ledger appends accounts-payable staging rows to an xlsx workbook.
//
// The destination workbook is owned by a downstream consumer: its column
// order changes without notice, so columns are resolved by header name on
// every write, never by position. Each invoice contributes two rows — an
// ITEM row carrying total minus tax and a TAX row carrying the tax — and a
// header the writer does not recognize is left blank rather than failing
// the write.
//
// The writer has no idempotency guard of its own: appending the same invoice
// twice produces duplicate rows. Calling it at most once per newly processed
// attachment is the orchestrator's job.
package ledger

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"invoiceflow/internal/fields"
	"invoiceflow/internal/logger"
)

// displayDateFormat is the short date form the AP workbook expects.
const displayDateFormat = "01/02/06"

// Semantic roles resolved from header names. Matching is case-insensitive
// on the trimmed header text; synonyms cover spellings seen in the wild,
// including the workbook's long-standing "desctiption" typo.
var (
	roleInvoiceNumber  = []string{"invoice number"}
	roleSupplierNumber = []string{"supplier number"}
	roleLineDesc       = []string{"line description", "line desctiption"}
	roleFunction       = []string{"function"}
	roleType           = []string{"type"}
	roleAmount         = []string{"amount"}
	roleInvoiceDate    = []string{"invoice date"}
	roleTodaysDate     = []string{"today's date"}
)

// fixedCells are organizational defaults the downstream AP load expects in
// every row, keyed by lowercased header name.
var fixedCells = map[string]string{
	"supplier site":   "JPY59",
	"description":     "",
	"pay group":       "AP3828",
	"entity":          "2827",
	"region":          "510",
	"expense account": "725",
	"product":         "1100",
	"project":         "0",
	"intercompany":    "0",
	"future use":      "0",
	"n/a":             "NO",
}

// defaultFunction is the expense function code applied when the extraction
// has none, which is always — the model contract does not include one.
const defaultFunction = "9600"

// Writer appends invoice rows to the AP ledger workbook.
type Writer struct {
	log zerolog.Logger
	now func() time.Time
}

// NewWriter creates a ledger writer.
func NewWriter() *Writer {
	return &Writer{
		log: logger.WithComponent("ledger"),
		now: time.Now,
	}
}

// Append opens the workbook at path, resolves its current header layout, and
// appends the ITEM and TAX rows for one invoice. Null amounts are coerced to
// zero; the item amount is clamped at zero when tax exceeds total.
func (w *Writer) Append(path string, f fields.Fields) error {
	const op = "Append"

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("%s: failed to open workbook: %w", op, err)
	}
	defer wb.Close()

	sheet := wb.GetSheetName(wb.GetActiveSheetIndex())
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("%s: failed to read sheet %q: %w", op, sheet, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s: sheet %q has no header row", op, sheet)
	}

	// Header layout is rebuilt on every call; the downstream consumer may
	// have reordered columns since the last pass.
	headers := rows[0]
	position := make(map[string]int, len(headers))
	for i, h := range headers {
		position[strings.ToLower(strings.TrimSpace(h))] = i
	}

	total := amountOrZero(f.TotalAmount)
	tax := amountOrZero(f.TaxAmount)
	item := total.Sub(tax)
	if item.IsNegative() {
		item = decimal.Zero
	}

	cells := rowCells{
		invoiceNumber:  f.InvoiceNumber,
		supplierNumber: generateSupplierNumber(),
		lineDesc:       f.LineDescription,
		function:       defaultFunction,
		invoiceDate:    displayDate(f.InvoiceDate, f.InvoiceDateRaw),
		todaysDate:     w.now().Format(displayDateFormat),
	}

	itemRow := buildRow(headers, position, cells, "ITEM", item)
	taxRow := buildRow(headers, position, cells, "TAX", tax)

	next := len(rows) + 1
	for i, row := range [][]any{itemRow, taxRow} {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s: failed to set row %d: %w", op, next+i, err)
		}
	}

	if err := wb.Save(); err != nil {
		return fmt.Errorf("%s: failed to save workbook: %w", op, err)
	}

	w.log.Info().
		Str("file", path).
		Str("invoice_number", f.InvoiceNumber).
		Str("item", item.String()).
		Str("tax", tax.String()).
		Msg("Appended ITEM and TAX ledger rows")

	return nil
}

// rowCells carries the per-invoice dynamic values shared by both rows.
type rowCells struct {
	invoiceNumber  string
	supplierNumber string
	lineDesc       string
	function       string
	invoiceDate    string
	todaysDate     string
}

// buildRow resolves every header to its value for one output row. Resolution
// is fallible by design: an unrecognized or blank header yields an empty
// cell, never an error.
func buildRow(headers []string, position map[string]int, cells rowCells, rowType string, amount decimal.Decimal) []any {
	row := make([]any, len(headers))
	for i := range row {
		row[i] = ""
	}

	for name, idx := range position {
		switch {
		case name == "":
			// blank header columns stay empty
		case matches(name, roleInvoiceNumber):
			row[idx] = cells.invoiceNumber
		case matches(name, roleSupplierNumber):
			row[idx] = cells.supplierNumber
		case matches(name, roleLineDesc):
			row[idx] = cells.lineDesc
		case matches(name, roleFunction):
			row[idx] = cells.function
		case matches(name, roleType):
			row[idx] = rowType
		case matches(name, roleAmount):
			row[idx] = amount.InexactFloat64()
		case matches(name, roleInvoiceDate):
			row[idx] = cells.invoiceDate
		case matches(name, roleTodaysDate):
			row[idx] = cells.todaysDate
		default:
			if v, ok := fixedCells[name]; ok {
				row[idx] = v
			}
		}
	}

	return row
}

func matches(name string, synonyms []string) bool {
	for _, s := range synonyms {
		if name == s {
			return true
		}
	}
	return false
}

// displayDate renders a parsed invoice date in the workbook's short form.
// An unparsable date passes through as its raw text instead of blanking,
// so a human reviewing the AP load still sees what the invoice said.
func displayDate(parsed *time.Time, raw string) string {
	if parsed != nil {
		return parsed.Format(displayDateFormat)
	}
	return raw
}

// generateSupplierNumber fabricates a "333"-prefixed placeholder.
//
// TODO: replace with a lookup against the vendor master once AP exposes
// one; the placeholder differs on every run for the same invoice, so it
// cannot be used to reconcile ledger rows against the database.
func generateSupplierNumber() string {
	return fmt.Sprintf("333%03d", rand.Intn(900)+100)
}

func amountOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// EnsureWorkbook creates the workbook with the canonical AP header row when
// it does not exist yet. The pipeline itself never calls this — a missing
// ledger is a startup precondition failure there — but the ledger command
// uses it to bootstrap a fresh staging file.
func EnsureWorkbook(path string) error {
	const op = "EnsureWorkbook"

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	wb := excelize.NewFile()
	defer wb.Close()

	sheet := "AP"
	if err := wb.SetSheetName(wb.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	headers := []any{
		"Invoice number", "Supplier number", "Supplier site", "Description",
		"Pay group", "Type", "Amount", "Line description", "Entity",
		"Region", "Function", "Expense account", "Product", "Project",
		"Intercompany", "Future use", "N/A",
	}
	if err := wb.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("%s: failed to create workbook: %w", op, err)
	}
	return nil
}
