// Package store persists canonical invoice fields into the normalized
// invoice_ai schema in PostgreSQL.
//
// All writes are insert-only and keyed by natural keys: vendors by name,
// accounts by number, purchase orders by PO number, invoices by source file
// name, email linkage by message id. Re-processing the same file or message
// never duplicates or mutates a previously recorded invoice; the unique
// constraints absorb duplicates atomically, which also makes concurrent
// passes safe without any locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoiceflow/internal/fields"
	"invoiceflow/internal/logger"
)

// DB is the slice of pgxpool.Pool the store uses. Tests substitute a stub.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store records invoices and their email linkage.
type Store struct {
	db  DB
	log zerolog.Logger
}

// EmailMeta identifies the mail message an invoice arrived in.
type EmailMeta struct {
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt *time.Time
}

// Connect opens a connection pool and returns a store backed by it.
func Connect(ctx context.Context, connString string) (*Store, *pgxpool.Pool, error) {
	const op = "Connect"

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("%s: database unreachable: %w", op, err)
	}

	return New(pool), pool, nil
}

// New creates a store backed by an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return NewWithDB(pool)
}

// NewWithDB creates a store with an explicit database handle (for testing).
func NewWithDB(db DB) *Store {
	return &Store{
		db:  db,
		log: logger.WithComponent("store"),
	}
}

// Migrate applies the invoice_ai schema. All statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "Migrate"

	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Info().Msg("invoice_ai schema is up to date")
	return nil
}

// RecordInvoice persists one invoice keyed by its source file name and
// returns the invoice row id. Vendor, account, and purchase order rows are
// resolved get-or-create by their natural keys. The invoice insert is a
// strict insert-if-absent: a conflicting file name performs no update and
// the pre-existing id is returned instead.
func (s *Store) RecordInvoice(ctx context.Context, fileName string, f fields.Fields) (int64, error) {
	const op = "RecordInvoice"

	vendorID, err := s.insertOrFetch(ctx,
		`INSERT INTO invoice_ai.vendors (name, address)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`,
		[]any{f.VendorName, f.VendorAddress},
		`SELECT id FROM invoice_ai.vendors WHERE name = $1`,
		f.VendorName,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: vendor: %w", op, err)
	}

	accountID, err := s.insertOrFetch(ctx,
		`INSERT INTO invoice_ai.accounts (number, name, manager)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (number) DO NOTHING
		 RETURNING id`,
		[]any{f.AccountNumber, f.AccountName, f.AccountManager},
		`SELECT id FROM invoice_ai.accounts WHERE number = $1`,
		f.AccountNumber,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: account: %w", op, err)
	}

	poID, err := s.insertOrFetch(ctx,
		`INSERT INTO invoice_ai.purchase_orders (po_number, billing_period, tax_code, tax_amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (po_number) DO NOTHING
		 RETURNING id`,
		[]any{f.PONumber, f.BillingPeriod, f.TaxCode, amountArg(f.TaxAmount)},
		`SELECT id FROM invoice_ai.purchase_orders WHERE po_number = $1`,
		f.PONumber,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: purchase order: %w", op, err)
	}

	invoiceID, err := s.insertOrFetch(ctx,
		`INSERT INTO invoice_ai.email_pipeline_invoices
			(file, invoice_number, invoice_date, due_date, currency, total_amount,
			 vendor_id, account_id, po_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (file) DO NOTHING
		 RETURNING id`,
		[]any{
			fileName, f.InvoiceNumber, f.InvoiceDate, f.DueDate,
			stringArg(f.Currency), amountArg(f.TotalAmount),
			vendorID, accountID, poID,
		},
		`SELECT id FROM invoice_ai.email_pipeline_invoices WHERE file = $1`,
		fileName,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: invoice: %w", op, err)
	}

	s.log.Info().
		Str("file", fileName).
		Str("invoice_number", f.InvoiceNumber).
		Int64("invoice_id", invoiceID).
		Msg("Invoice recorded")

	return invoiceID, nil
}

// RecordEmailLinkage links a mail message to its invoice. Re-delivery of the
// same message refreshes subject, sender, and invoice id but keeps the
// original receipt time once set.
func (s *Store) RecordEmailLinkage(ctx context.Context, invoiceID int64, meta EmailMeta) error {
	const op = "RecordEmailLinkage"

	if meta.MessageID == "" {
		// A blank message id would make unrelated messages collide on the
		// primary key, so the linkage is skipped instead.
		s.log.Warn().
			Int64("invoice_id", invoiceID).
			Str("subject", meta.Subject).
			Msg("Message has no Message-ID; skipping email linkage")
		return nil
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO invoice_ai.email_invoices
			(message_id, subject, sender, received_at, invoice_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (message_id) DO UPDATE
		    SET invoice_id  = EXCLUDED.invoice_id,
		        subject     = EXCLUDED.subject,
		        sender      = EXCLUDED.sender,
		        received_at = COALESCE(email_invoices.received_at, EXCLUDED.received_at)`,
		meta.MessageID, meta.Subject, meta.Sender, meta.ReceivedAt, invoiceID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// insertOrFetch runs a conditional insert and, when the unique constraint
// suppressed it, fetches the pre-existing row id. The insert itself is the
// atomic step; the follow-up select only ever observes a committed row.
func (s *Store) insertOrFetch(ctx context.Context, insertSQL string, insertArgs []any, selectSQL string, selectArgs ...any) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, insertSQL, insertArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := s.db.QueryRow(ctx, selectSQL, selectArgs...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// amountArg renders a decimal for a NUMERIC parameter, nil for null.
func amountArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// stringArg maps "" to NULL for columns where absence matters.
func stringArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}
