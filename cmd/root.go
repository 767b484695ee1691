package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoiceflow/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoiceflow",
	Short: "Invoiceflow - vendor invoice ingestion from mailbox to ledger",
	Long: `Invoiceflow watches an IMAP mailbox for vendor invoice emails, extracts
structured fields from their PDF attachments with OCR and a language model,
and records the results in PostgreSQL and the accounts-payable xlsx ledger.

Configuration is environment-driven; see .env.example for the full list of
variables. Each subcommand covers one stage of the flow so stages can also
be run and debugged in isolation.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Invoiceflow CLI executed")

		fmt.Println("Welcome to Invoiceflow!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
