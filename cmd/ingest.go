package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoiceflow/internal/config"
	"invoiceflow/internal/extract"
	"invoiceflow/internal/ledger"
	"invoiceflow/internal/logger"
	"invoiceflow/internal/mailbox"
	"invoiceflow/internal/pipeline"
	"invoiceflow/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest invoice emails from the IMAP mailbox",
	Long: `Run the full ingestion pipeline: list unseen messages in the configured
IMAP folder, filter them by the sender allow-list, extract structured fields
from each PDF attachment, record the invoices in PostgreSQL and append them
to the AP ledger workbook, then archive the processed messages.

A single invocation performs one pass. With --loop the pass repeats on a
fixed interval; the interval must be longer than the per-pass timeout so
passes never overlap. The pipeline assumes it is the only instance working
the mailbox.

Required environment variables:
  IMAP_HOST, IMAP_USER, IMAP_PASSWORD - mailbox connection
  OPENAI_API_KEY                      - field extraction model
  LEDGER_XLSX                         - path to the AP ledger workbook
  PG_HOST, PG_DATABASE, PG_USER, ...  - PostgreSQL connection`,
	Example: `  # One ingestion pass
  invoiceflow ingest

  # Poll every 10 minutes
  invoiceflow ingest --loop

  # Poll every half hour instead of the configured interval
  invoiceflow ingest --loop --interval 30m`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("loop", false, "Keep running, one pass per interval")
	ingestCmd.Flags().Duration("interval", 0, "Loop interval (default: LOOP_INTERVAL)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ingest")

	loop, _ := cmd.Flags().GetBool("loop")
	interval, _ := cmd.Flags().GetDuration("interval")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Configuration is incomplete")
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if interval > 0 {
		cfg.LoopInterval = interval
	}
	if loop {
		if err := cfg.ValidateLoop(); err != nil {
			return fmt.Errorf("invalid loop settings: %w", err)
		}
	}

	// The workbook is a precondition, not something the pipeline creates:
	// appending to a silently re-created empty file would hide a lost ledger.
	if _, err := os.Stat(cfg.LedgerPath); err != nil {
		log.Error().Err(err).Str("path", cfg.LedgerPath).Msg("Ledger workbook not accessible")
		return fmt.Errorf("ledger workbook %q not accessible (run 'invoiceflow ledger --init' to create one): %w",
			cfg.LedgerPath, err)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	extractor, err := extract.NewService(ctx)
	if err != nil {
		return fmt.Errorf("failed to create extraction service: %w", err)
	}

	recorder, pool, err := store.Connect(ctx, cfg.ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	writer := ledger.NewWriter()

	if !loop {
		return runPass(ctx, cfg, extractor, recorder, writer, log)
	}

	log.Info().
		Dur("interval", cfg.LoopInterval).
		Msg("Starting ingestion loop")

	ticker := time.NewTicker(cfg.LoopInterval)
	defer ticker.Stop()

	for {
		if err := runPass(ctx, cfg, extractor, recorder, writer, log); err != nil {
			// A failed pass is retried on the next tick; only shutdown
			// ends the loop.
			log.Error().Err(err).Msg("Ingestion pass failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Ingestion loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// runPass dials a fresh IMAP session, runs one pipeline pass under the
// configured timeout, and tears the session down. Re-dialing per pass keeps
// the loop immune to servers that drop idle connections between intervals.
func runPass(ctx context.Context, cfg *config.Config, extractor extract.Service, recorder *store.Store, writer *ledger.Writer, log zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	passCtx, cancel := context.WithTimeout(ctx, cfg.PassTimeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort)
	client, err := mailbox.Dial(addr, cfg.IMAPUser, cfg.IMAPPassword, cfg.IMAPFolder)
	if err != nil {
		return fmt.Errorf("failed to open mailbox: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close IMAP session")
		}
	}()

	p := pipeline.New(client, extractor, recorder, writer, pipeline.Config{
		LedgerPath:     cfg.LedgerPath,
		ArchiveFolder:  cfg.ArchiveFolder,
		AllowedSenders: cfg.AllowedSenders,
	})

	report, err := p.Run(passCtx)
	if err != nil {
		return err
	}

	log.Info().
		Int("processed", len(report.Processed)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("Pass finished")

	for _, res := range report.Failed {
		log.Warn().
			Str("file", res.File).
			Str("message_id", res.MessageID).
			Err(res.Err).
			Msg("Item failed during pass")
	}
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
