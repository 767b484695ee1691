package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IMAP_USER", "ap@example.com")
	t.Setenv("IMAP_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LEDGER_XLSX", "/tmp/ledger.xlsx")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "outlook.office365.com", cfg.IMAPHost)
	assert.Equal(t, 993, cfg.IMAPPort)
	assert.Equal(t, "INBOX", cfg.IMAPFolder)
	assert.Equal(t, "Processed", cfg.ArchiveFolder)
	assert.Empty(t, cfg.AllowedSenders)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 5*time.Minute, cfg.PassTimeout)
	assert.Equal(t, 10*time.Minute, cfg.LoopInterval)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"missing imap user", "IMAP_USER"},
		{"missing imap password", "IMAP_PASSWORD"},
		{"missing openai key", "OPENAI_API_KEY"},
		{"missing ledger path", "LEDGER_XLSX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.omit, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.omit)
		})
	}
}

func TestLoadAllowedSenders(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOWED_SENDERS", "Acme.com, , globex.COM")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com", "globex.com"}, cfg.AllowedSenders)
}

func TestValidateLoop(t *testing.T) {
	cfg := &Config{PassTimeout: 5 * time.Minute, LoopInterval: 10 * time.Minute}
	assert.NoError(t, cfg.ValidateLoop())

	cfg.LoopInterval = 5 * time.Minute
	assert.Error(t, cfg.ValidateLoop())

	cfg.LoopInterval = time.Minute
	assert.Error(t, cfg.ValidateLoop())
}

func TestLoadLenientSkipsValidation(t *testing.T) {
	t.Setenv("IMAP_USER", "")
	t.Setenv("LEDGER_XLSX", "")

	cfg := LoadLenient()
	assert.Equal(t, "invoice_db", cfg.PGDatabase)
}

func TestConnString(t *testing.T) {
	cfg := &Config{
		PGHost:     "db.internal",
		PGPort:     "5433",
		PGDatabase: "invoices",
		PGUser:     "app",
		PGPassword: "pw",
	}
	assert.Equal(t, "host=db.internal port=5433 dbname=invoices user=app password=pw", cfg.ConnString())
}

func TestDurationEnvFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PASS_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.PassTimeout)
}
