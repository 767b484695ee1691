// Package config loads the pipeline configuration from the environment and
// validates it at startup. A missing required credential is fatal: the
// pipeline must not attempt partial operation without its external
// dependencies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"invoiceflow/internal/logger"
)

type Config struct {
	// Mailbox (IMAP)
	IMAPHost      string
	IMAPPort      int
	IMAPUser      string
	IMAPPassword  string
	IMAPFolder    string
	ArchiveFolder string

	// Optional sender-domain allow-list; empty means accept all senders.
	AllowedSenders []string

	// OpenAI
	OpenAIAPIKey string
	OpenAIModel  string

	// Postgres
	PGHost     string
	PGPort     string
	PGDatabase string
	PGUser     string
	PGPassword string

	// Ledger workbook
	LedgerPath string

	// Scheduling
	PassTimeout  time.Duration
	LoopInterval time.Duration

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadLenient loads the configuration without enforcing the full ingest
// credential set. Subcommands that touch a single sink (ledger, migrate)
// validate only the settings they actually use.
func LoadLenient() *Config {
	return loadFromEnv()
}

func loadFromEnv() *Config {
	return &Config{
		IMAPHost:      getEnv("IMAP_HOST", "outlook.office365.com"),
		IMAPPort:      getIntEnv("IMAP_PORT", 993),
		IMAPUser:      getEnv("IMAP_USER", ""),
		IMAPPassword:  getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:    getEnv("IMAP_FOLDER", "INBOX"),
		ArchiveFolder: getEnv("IMAP_ARCHIVE_FOLDER", "Processed"),

		AllowedSenders: splitList(getEnv("ALLOWED_SENDERS", "")),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		PGHost:     getEnv("PG_HOST", "localhost"),
		PGPort:     getEnv("PG_PORT", "5432"),
		PGDatabase: getEnv("PG_DB", "invoice_db"),
		PGUser:     getEnv("PG_USER", "postgres"),
		PGPassword: getEnv("PG_PASSWORD", ""),

		LedgerPath: getEnv("LEDGER_XLSX", ""),

		PassTimeout:  getDurationEnv("PASS_TIMEOUT", 5*time.Minute),
		LoopInterval: getDurationEnv("LOOP_INTERVAL", 10*time.Minute),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}
}

func (c *Config) validate() error {
	if c.IMAPUser == "" {
		return fmt.Errorf("IMAP_USER is required")
	}
	if c.IMAPPassword == "" {
		return fmt.Errorf("IMAP_PASSWORD is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_XLSX is required")
	}
	return nil
}

// ValidateLoop enforces the run-duration vs interval invariant for looped
// ingestion: the poll interval must exceed the worst-case pass duration or
// two passes could overlap and race on the ledger workbook.
func (c *Config) ValidateLoop() error {
	if c.LoopInterval <= c.PassTimeout {
		return fmt.Errorf("LOOP_INTERVAL (%s) must exceed PASS_TIMEOUT (%s)", c.LoopInterval, c.PassTimeout)
	}
	return nil
}

// ConnString builds the pgx connection string for the configured database.
func (c *Config) ConnString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s",
		c.PGHost, c.PGPort, c.PGDatabase, c.PGUser, c.PGPassword)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
