package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/bootstrap"
	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/telegram"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(DefaultConfigEnvVar, "")
	assert.Equal(t, DefaultConfigPath, ResolveConfigPath(""))

	t.Setenv(DefaultConfigEnvVar, "/etc/menubot.yaml")
	assert.Equal(t, "/etc/menubot.yaml", ResolveConfigPath(""))
	assert.Equal(t, "local.yaml", ResolveConfigPath("local.yaml"))
}

func fakeOptions(t *testing.T, run func(ctx context.Context, bot *tele.Bot, opts telegram.RunOptions) error) Options {
	t.Helper()
	return Options{
		ConfigPath: "unused.yaml",
		LoadConfig: func(string) (*coreconfig.Config, error) { return testConfig(t), nil },
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
			return &bootstrap.Result{}, nil
		},
		NewBot: func(context.Context, *coreconfig.Config) (*tele.Bot, error) {
			return tele.NewBot(tele.Settings{Offline: true})
		},
		RunTelegram:    run,
		ShutdownLogger: func() error { return nil },
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := fakeOptions(t, func(ctx context.Context, bot *tele.Bot, ro telegram.RunOptions) error {
		assert.NotNil(t, bot)
		assert.NoError(t, ro.OnStart(ctx, bot))
		close(started)
		<-ctx.Done()
		return ro.OnStop(ctx, bot)
	})

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, opts) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("telegram runtime not started")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeFailsWhenTelegramStops(t *testing.T) {
	opts := fakeOptions(t, func(context.Context, *tele.Bot, telegram.RunOptions) error {
		return nil
	})

	err := Serve(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped unexpectedly")
}

func TestServePropagatesConfigError(t *testing.T) {
	opts := fakeOptions(t, nil)
	opts.LoadConfig = func(string) (*coreconfig.Config, error) { return nil, coreconfig.ErrMissingToken }

	err := Serve(context.Background(), opts)
	assert.ErrorIs(t, err, coreconfig.ErrMissingToken)
}

func TestServePropagatesBootstrapError(t *testing.T) {
	boom := errors.New("db down")
	opts := fakeOptions(t, nil)
	opts.Bootstrap = func(context.Context, bootstrap.Options) (*bootstrap.Result, error) { return nil, boom }

	err := Serve(context.Background(), opts)
	assert.ErrorIs(t, err, boom)
}

func TestMigrateRequiresDatabase(t *testing.T) {
	opts := fakeOptions(t, nil)
	err := Migrate(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
}

func TestHistoryValidatesInput(t *testing.T) {
	opts := fakeOptions(t, nil)
	connected := false
	opts.ConnectDB = func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
		connected = true
		return nil, errors.New("unexpected connect")
	}

	err := History(context.Background(), opts, "  ", 5, &bytes.Buffer{})
	assert.ErrorContains(t, err, "sender is required")

	err = History(context.Background(), opts, "42", 5, &bytes.Buffer{})
	assert.ErrorContains(t, err, "DB_HOST")
	assert.False(t, connected)
}

func TestHistoryReportsDatabaseErrors(t *testing.T) {
	opts := fakeOptions(t, nil)
	opts.LoadConfig = func(string) (*coreconfig.Config, error) {
		cfg := testConfig(t)
		cfg.Database = coreconfig.DatabaseConfig{Host: "127.0.0.1", Port: "1", User: "bot", Name: "menubot", SSLMode: "disable"}
		return cfg, nil
	}

	opts.ConnectDB = func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
		return nil, errors.New("connection refused")
	}
	err := History(context.Background(), opts, "42", 5, &bytes.Buffer{})
	assert.ErrorContains(t, err, "journal database: connection refused")

	opts.ConnectDB = func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
		return sqlx.Open("postgres", "host=127.0.0.1 port=1 user=bot dbname=menubot sslmode=disable connect_timeout=1")
	}
	var out bytes.Buffer
	err = History(context.Background(), opts, "42", 5, &out)
	assert.ErrorContains(t, err, "select session events")
	assert.Empty(t, out.String())
}
