package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoiceflow/internal/config"
	"invoiceflow/internal/fields"
	"invoiceflow/internal/ledger"
	"invoiceflow/internal/logger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger [fields-json]",
	Short: "Append invoice rows to the AP ledger workbook",
	Long: `Append the ITEM and TAX rows for one invoice to the AP ledger workbook,
taking the canonical field set from a JSON file instead of the extraction
pipeline. The JSON uses the same keys the extraction model produces
("Invoice Number", "Total Amount", ...); unknown keys are ignored.

This is the ops path for ledger corrections: when an invoice was recorded
in the database but its ledger append failed, re-run just the append from
the saved field JSON.

With --init the workbook is created with the canonical header row when it
does not exist yet.

Required environment variables:
  LEDGER_XLSX - path to the AP ledger workbook`,
	Example: `  # Create the workbook if absent
  invoiceflow ledger --init

  # Append rows for a saved field set
  invoiceflow ledger fields.json

  # Create the workbook if needed, then append
  invoiceflow ledger --init fields.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)

	ledgerCmd.Flags().Bool("init", false, "Create the workbook with the canonical header row if absent")
}

func runLedger(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ledger")

	initWorkbook, _ := cmd.Flags().GetBool("init")
	if !initWorkbook && len(args) == 0 {
		return fmt.Errorf("nothing to do: pass a fields JSON file, --init, or both")
	}

	cfg := config.LoadLenient()
	if cfg.LedgerPath == "" {
		return fmt.Errorf("LEDGER_XLSX is required")
	}

	if initWorkbook {
		if err := ledger.EnsureWorkbook(cfg.LedgerPath); err != nil {
			return fmt.Errorf("failed to initialize workbook: %w", err)
		}
		log.Info().Str("path", cfg.LedgerPath).Msg("Ledger workbook ready")
	}

	if len(args) == 0 {
		return nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read fields file: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid fields JSON in %q: %w", args[0], err)
	}
	f := fields.Normalize(raw)

	if err := ledger.NewWriter().Append(cfg.LedgerPath, f); err != nil {
		return fmt.Errorf("failed to append ledger rows: %w", err)
	}

	log.Info().
		Str("path", cfg.LedgerPath).
		Str("invoice_number", f.InvoiceNumber).
		Msg("Ledger rows appended")
	return nil
}
