package store

// DDL for the invoice_ai schema. All statements are idempotent so Migrate
// can run on every deploy. The unique constraints double as the pipeline's
// only concurrency-safety mechanism: overlapping passes converge on one row
// per natural key instead of taking locks.
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS invoice_ai`,

	`CREATE TABLE IF NOT EXISTS invoice_ai.vendors (
		id      BIGSERIAL PRIMARY KEY,
		name    TEXT NOT NULL UNIQUE,
		address TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_ai.accounts (
		id      BIGSERIAL PRIMARY KEY,
		number  TEXT NOT NULL UNIQUE,
		name    TEXT,
		manager TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_ai.purchase_orders (
		id             BIGSERIAL PRIMARY KEY,
		po_number      TEXT NOT NULL UNIQUE,
		billing_period TEXT,
		tax_code       TEXT,
		tax_amount     NUMERIC
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_ai.email_pipeline_invoices (
		id             BIGSERIAL PRIMARY KEY,
		file           TEXT NOT NULL UNIQUE,
		invoice_number TEXT,
		invoice_date   DATE,
		due_date       DATE,
		currency       TEXT,
		total_amount   NUMERIC,
		vendor_id      BIGINT REFERENCES invoice_ai.vendors(id),
		account_id     BIGINT REFERENCES invoice_ai.accounts(id),
		po_id          BIGINT REFERENCES invoice_ai.purchase_orders(id),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS invoice_ai.email_invoices (
		message_id  TEXT PRIMARY KEY,
		subject     TEXT,
		sender      TEXT,
		received_at TIMESTAMPTZ,
		invoice_id  BIGINT REFERENCES invoice_ai.email_pipeline_invoices(id)
	)`,
}
