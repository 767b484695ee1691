package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"invoiceflow/internal/extract"
	"invoiceflow/internal/logger"
	"invoiceflow/internal/pdfutil"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract invoice fields from a single PDF",
	Long: `Run the extraction stage against one PDF on disk, without touching the
mailbox, the database, or the ledger. The PDF is OCRed with Google Cloud
Vision and the recognized text is passed to the language model, which
returns the canonical invoice field set as JSON.

This is the debugging entry point for extraction quality: feed it an
invoice that ingested badly and inspect what the model actually produced.

Required environment variables:
  OPENAI_API_KEY                 - field extraction model
  GOOGLE_APPLICATION_CREDENTIALS - Google Cloud service account, OR
  GOOGLE_CREDENTIALS             - inline JSON credentials`,
	Example: `  # Extract fields to stdout
  invoiceflow extract invoice.pdf

  # Save fields to a file
  invoiceflow extract invoice.pdf -o fields.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	pdfPath := args[0]

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Error().Err(err).Str("file", pdfPath).Msg("Failed to read PDF file")
		return fmt.Errorf("failed to read PDF file: %w", err)
	}

	info, err := pdfutil.Validate(data)
	if err != nil {
		return fmt.Errorf("invalid PDF file %q: %w", pdfPath, err)
	}
	log.Info().
		Str("file", pdfPath).
		Int("pages", info.PageCount).
		Int("size", len(data)).
		Msg("Starting field extraction")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	service, err := extract.NewService(ctx)
	if err != nil {
		return fmt.Errorf("failed to create extraction service: %w", err)
	}

	start := time.Now()
	f, err := service.Extract(ctx, data)
	if err != nil {
		log.Error().Err(err).Str("file", pdfPath).Msg("Extraction failed")
		return fmt.Errorf("extraction failed: %w", err)
	}

	log.Info().
		Str("invoice_number", f.InvoiceNumber).
		Str("vendor", f.VendorName).
		Dur("duration", time.Since(start)).
		Msg("Extraction completed")

	out, err := json.MarshalIndent(f.Map(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render fields: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, out, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().Str("output_file", outputPath).Msg("Fields written to file")
		return nil
	}

	fmt.Println(string(out))
	return nil
}
