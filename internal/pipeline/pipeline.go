// Package pipeline orchestrates one ingestion pass over the invoice mailbox:
// list unseen messages, filter by sender, extract structured fields from each
// PDF attachment, record them in the database and the AP ledger, then retire
// the message.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"invoiceflow/internal/fields"
	"invoiceflow/internal/logger"
	"invoiceflow/internal/mailbox"
	"invoiceflow/internal/pdfutil"
	"invoiceflow/internal/store"
)

// Extractor turns a PDF document into structured invoice fields.
type Extractor interface {
	Extract(ctx context.Context, documentBytes []byte) (fields.Fields, error)
}

// Recorder persists invoices and their email linkage.
type Recorder interface {
	RecordInvoice(ctx context.Context, fileName string, f fields.Fields) (int64, error)
	RecordEmailLinkage(ctx context.Context, invoiceID int64, meta store.EmailMeta) error
}

// Appender writes invoice rows to the AP ledger workbook.
type Appender interface {
	Append(path string, f fields.Fields) error
}

// Result is the outcome for one unit of work: an attachment, or a whole
// message when it never reached attachment processing.
type Result struct {
	File      string
	MessageID string
	InvoiceID int64
	Err       error
}

// Report summarizes one pass.
type Report struct {
	Processed []Result
	Skipped   []Result
	Failed    []Result
}

// Config carries the pass-level settings the orchestrator needs.
type Config struct {
	LedgerPath     string
	ArchiveFolder  string
	AllowedSenders []string
}

// Pipeline runs ingestion passes. All collaborators are injected; the
// pipeline itself owns no connections and holds no state between passes.
type Pipeline struct {
	client    mailbox.Client
	extractor Extractor
	recorder  Recorder
	ledger    Appender
	cfg       Config
	log       zerolog.Logger

	validate func(data []byte) error
}

// New creates a pipeline over the given collaborators.
func New(client mailbox.Client, extractor Extractor, recorder Recorder, ledger Appender, cfg Config) *Pipeline {
	return &Pipeline{
		client:    client,
		extractor: extractor,
		recorder:  recorder,
		ledger:    ledger,
		cfg:       cfg,
		log:       logger.WithComponent("pipeline"),
		validate: func(data []byte) error {
			_, err := pdfutil.Validate(data)
			return err
		},
	}
}

// Run executes one pass. A failure on one message is recorded and the pass
// moves on; Run returns a non-nil error only when the pass itself cannot
// proceed (folder setup, listing, or context cancellation).
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	const op = "Run"

	if err := p.client.EnsureFolder(p.cfg.ArchiveFolder); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uids, err := p.client.ListUnseen()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.log.Info().Int("unseen", len(uids)).Msg("Starting ingestion pass")

	report := &Report{}
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%s: pass aborted: %w", op, err)
		}
		p.handleMessage(ctx, uid, report)
	}

	p.log.Info().
		Int("processed", len(report.Processed)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("Ingestion pass complete")

	return report, nil
}

// handleMessage processes one message end to end. The message is retired
// (seen, archived, deleted) once every attachment has been attempted —
// including attempts that failed, which stay visible in the report rather
// than being retried forever. Only a fetch failure leaves the message
// unseen for the next pass.
func (p *Pipeline) handleMessage(ctx context.Context, uid uint32, report *Report) {
	msg, err := p.client.Fetch(uid)
	if err != nil {
		p.log.Error().Err(err).Uint32("uid", uid).Msg("Failed to fetch message")
		report.Failed = append(report.Failed, Result{Err: err})
		return
	}

	log := p.log.With().
		Uint32("uid", uid).
		Str("message_id", msg.MessageID).
		Str("from", msg.From).
		Logger()

	if !mailbox.SenderAllowed(msg.From, p.cfg.AllowedSenders) {
		log.Info().Msg("Sender not on allow-list, skipping message")
		report.Skipped = append(report.Skipped, Result{MessageID: msg.MessageID})
		p.retire(uid, log)
		return
	}

	if len(msg.Attachments) == 0 {
		log.Info().Str("subject", msg.Subject).Msg("No PDF attachments, skipping message")
		report.Skipped = append(report.Skipped, Result{MessageID: msg.MessageID})
		p.retire(uid, log)
		return
	}

	for _, att := range msg.Attachments {
		res := p.processAttachment(ctx, msg, att)
		if res.Err != nil {
			log.Error().Err(res.Err).Str("file", res.File).Msg("Attachment processing failed")
			report.Failed = append(report.Failed, res)
		} else {
			log.Info().Str("file", res.File).Int64("invoice_id", res.InvoiceID).Msg("Attachment processed")
			report.Processed = append(report.Processed, res)
		}
	}

	p.retire(uid, log)
}

// processAttachment runs extraction and both sinks for one PDF. The database
// and the ledger are independent: a failure in one is joined into the result
// but does not stop the other.
func (p *Pipeline) processAttachment(ctx context.Context, msg *mailbox.Message, att mailbox.Attachment) Result {
	res := Result{File: att.Filename, MessageID: msg.MessageID}

	if err := p.validate(att.Data); err != nil {
		res.Err = fmt.Errorf("invalid pdf %q: %w", att.Filename, err)
		return res
	}

	f, err := p.extractor.Extract(ctx, att.Data)
	if err != nil {
		res.Err = fmt.Errorf("extraction of %q failed: %w", att.Filename, err)
		return res
	}

	invoiceID, dbErr := p.recorder.RecordInvoice(ctx, att.Filename, f)
	if dbErr == nil {
		res.InvoiceID = invoiceID
		received := msg.Date
		dbErr = p.recorder.RecordEmailLinkage(ctx, invoiceID, store.EmailMeta{
			MessageID:  msg.MessageID,
			Subject:    msg.Subject,
			Sender:     msg.From,
			ReceivedAt: &received,
		})
	}

	ledgerErr := p.ledger.Append(p.cfg.LedgerPath, f)

	res.Err = errors.Join(dbErr, ledgerErr)
	return res
}

// retire marks the message seen, copies it to the archive folder, and
// deletes the original. A retirement failure is logged but does not fail
// the pass; the worst outcome of a partial retirement is a re-process,
// which the database absorbs idempotently.
func (p *Pipeline) retire(uid uint32, log zerolog.Logger) {
	if err := p.client.MarkSeen(uid); err != nil {
		log.Warn().Err(err).Msg("Failed to mark message seen")
		return
	}
	if err := p.client.Archive(uid, p.cfg.ArchiveFolder); err != nil {
		log.Warn().Err(err).Msg("Failed to archive message")
		return
	}
	if err := p.client.Delete(uid); err != nil {
		log.Warn().Err(err).Msg("Failed to delete archived message")
	}
}
