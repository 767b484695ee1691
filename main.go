package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"invoiceflow/cmd"
	"invoiceflow/internal/config"
	"invoiceflow/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Logging is configured from the environment alone so that subcommands
	// with lighter credential requirements still log properly.
	if err := logger.Setup(config.LoadLenient().GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.WithComponent("main")
	log.Info().Msg("Starting Invoiceflow")

	cmd.Execute()

	log.Info().Msg("Invoiceflow shutdown")
	os.Exit(0)
}
