package store

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/fields"
)

// fakeDB emulates the conditional-insert semantics of the invoice_ai schema
// in memory: ON CONFLICT DO NOTHING yields pgx.ErrNoRows from RETURNING, and
// the follow-up SELECT observes the existing row.
type fakeDB struct {
	nextID   int64
	vendors  map[string]int64
	accounts map[string]int64
	pos      map[string]int64
	invoices map[string]int64
	execSQL  []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		vendors:  map[string]int64{},
		accounts: map[string]int64{},
		pos:      map[string]int64{},
		invoices: map[string]int64{},
	}
}

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.id
	return nil
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	table := func() map[string]int64 {
		switch {
		case strings.Contains(sql, "invoice_ai.vendors"):
			return db.vendors
		case strings.Contains(sql, "invoice_ai.accounts"):
			return db.accounts
		case strings.Contains(sql, "invoice_ai.purchase_orders"):
			return db.pos
		case strings.Contains(sql, "invoice_ai.email_pipeline_invoices"):
			return db.invoices
		}
		return nil
	}()
	if table == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}

	key, _ := args[0].(string)
	if strings.HasPrefix(strings.TrimSpace(sql), "INSERT") {
		if _, exists := table[key]; exists {
			// conflict: DO NOTHING means RETURNING yields no row
			return fakeRow{err: pgx.ErrNoRows}
		}
		db.nextID++
		table[key] = db.nextID
		return fakeRow{id: db.nextID}
	}

	id, exists := table[key]
	if !exists {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{id: id}
}

func sampleFields() fields.Fields {
	total := decimal.RequireFromString("714.00")
	return fields.Fields{
		InvoiceNumber: "INV-101905",
		VendorName:    "Scott Inc",
		AccountNumber: "5850133469",
		PONumber:      "PO-77831",
		Currency:      "CAD",
		TotalAmount:   &total,
	}
}

func TestRecordInvoiceIdempotent(t *testing.T) {
	db := newFakeDB()
	s := NewWithDB(db)

	id1, err := s.RecordInvoice(context.Background(), "inv.pdf", sampleFields())
	require.NoError(t, err)

	id2, err := s.RecordInvoice(context.Background(), "inv.pdf", sampleFields())
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "same file must resolve to one invoice row")
	assert.Len(t, db.invoices, 1)
}

func TestRecordInvoiceReusesDimensionRows(t *testing.T) {
	db := newFakeDB()
	s := NewWithDB(db)

	_, err := s.RecordInvoice(context.Background(), "a.pdf", sampleFields())
	require.NoError(t, err)
	_, err = s.RecordInvoice(context.Background(), "b.pdf", sampleFields())
	require.NoError(t, err)

	assert.Len(t, db.vendors, 1, "same vendor name must not create two vendor rows")
	assert.Len(t, db.accounts, 1)
	assert.Len(t, db.pos, 1)
	assert.Len(t, db.invoices, 2)
}

func TestRecordInvoiceDistinctVendors(t *testing.T) {
	db := newFakeDB()
	s := NewWithDB(db)

	f1 := sampleFields()
	f2 := sampleFields()
	f2.VendorName = "Other Corp"

	_, err := s.RecordInvoice(context.Background(), "a.pdf", f1)
	require.NoError(t, err)
	_, err = s.RecordInvoice(context.Background(), "b.pdf", f2)
	require.NoError(t, err)

	assert.Len(t, db.vendors, 2)
}

func TestRecordEmailLinkage(t *testing.T) {
	db := newFakeDB()
	s := NewWithDB(db)

	err := s.RecordEmailLinkage(context.Background(), 7, EmailMeta{
		MessageID: "<abc@mail>",
		Subject:   "Your invoice",
		Sender:    "billing@acme.com",
	})
	require.NoError(t, err)
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "ON CONFLICT (message_id) DO UPDATE")
	assert.Contains(t, db.execSQL[0], "COALESCE(email_invoices.received_at")
}

func TestRecordEmailLinkageSkipsBlankMessageID(t *testing.T) {
	db := newFakeDB()
	s := NewWithDB(db)

	err := s.RecordEmailLinkage(context.Background(), 7, EmailMeta{})
	require.NoError(t, err)
	assert.Empty(t, db.execSQL, "blank message id must not be written")
}

func TestMigrateAppliesAllStatements(t *testing.T) {
	db := newFakeDB()
	s := NewWithDB(db)

	require.NoError(t, s.Migrate(context.Background()))
	assert.Len(t, db.execSQL, len(schemaStatements))
}

func TestAmountArg(t *testing.T) {
	assert.Nil(t, amountArg(nil))
	d := decimal.RequireFromString("12.50")
	assert.Equal(t, "12.5", amountArg(&d))
}
