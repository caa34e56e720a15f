package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "123:abc"}}

	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, DefaultInactivitySeconds, cfg.Session.InactivitySeconds)
	assert.Equal(t, DefaultLocale, cfg.Session.Locale)
	assert.Equal(t, DefaultHTTPPort, cfg.HTTP.Port)
	assert.False(t, cfg.Database.Enabled())
	assert.Empty(t, cfg.Database.Port, "database defaults apply only when enabled")
	assert.Equal(t, 300*time.Second, cfg.InactivityWindow())
	assert.Zero(t, cfg.RetryBackoff())
}

func TestNormalizeRequiresToken(t *testing.T) {
	err := Normalize(&Config{})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNormalizeRunModes(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t", RunMode: "Polling"}}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)

	cfg = &Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}}
	assert.Error(t, Normalize(cfg), "webhook without url")

	cfg = &Config{
		Telegram: TelegramConfig{Token: "t", RunMode: "webhook"},
		Webhook:  WebhookConfig{URL: "https://example.org/hook", Port: 3000},
	}
	assert.Error(t, Normalize(cfg), "webhook port collides with default http port")

	cfg.Webhook.Port = 8443
	require.NoError(t, Normalize(cfg))

	cfg = &Config{Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}}
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeRejectsNegativeWindow(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Session:  SessionConfig{InactivitySeconds: -1},
	}
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeDatabaseDefaults(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "t"},
		Database: DatabaseConfig{Host: "localhost"},
	}
	require.NoError(t, Normalize(cfg))

	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "migrations", cfg.Database.MigrationsDir)
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
telegram:
  token: from-file
session:
  inactivity_seconds: 60
  locale: pt-BR
http:
  port: 8081
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("PORT", "9090")
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, 60, cfg.Session.InactivitySeconds)
	assert.Equal(t, "pt-BR", cfg.Session.Locale)
	assert.Equal(t, 9090, cfg.HTTP.Port, "environment wins over file")
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, DefaultInactivitySeconds, cfg.Session.InactivitySeconds)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if os.Getenv("BOT_TOKEN") != "" {
		t.Skip("BOT_TOKEN already set; .env would not override it")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BOT_TOKEN=dotenv-token\nSESSION_INACTIVITY_SECONDS=42\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BOT_TOKEN")
		os.Unsetenv("SESSION_INACTIVITY_SECONDS")
	})

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dotenv-token", cfg.Telegram.Token)
	assert.Equal(t, 42, cfg.Session.InactivitySeconds)
}
