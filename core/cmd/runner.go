// Package cmd loads configuration, assembles the bot and runs it until shutdown.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/menubot/core/bootstrap"
	coreconfig "github.com/m3rciful/menubot/core/config"
	coredatabase "github.com/m3rciful/menubot/core/database"
	"github.com/m3rciful/menubot/core/journal"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/session"
	"github.com/m3rciful/menubot/core/telegram"
)

// DefaultConfigEnvVar names the variable holding the config file path.
const DefaultConfigEnvVar = "CONFIG_PATH"

// DefaultConfigPath is used when neither a flag nor CONFIG_PATH names a file.
const DefaultConfigPath = "config.yaml"

// Options describe how to load configuration and run the bot. Nil hooks use the real implementations.
type Options struct {
	ConfigPath string

	LoadConfig     func(path string) (*coreconfig.Config, error)
	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	NewBot         func(ctx context.Context, cfg *coreconfig.Config) (*tele.Bot, error)
	RunTelegram    func(ctx context.Context, bot *tele.Bot, opts telegram.RunOptions) error
	ShutdownLogger func() error
	ConnectDB      func(ctx context.Context, cfg coreconfig.DatabaseConfig) (*sqlx.DB, error)
}

// ResolveConfigPath picks the explicit path, then CONFIG_PATH, then DefaultConfigPath.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(DefaultConfigEnvVar); env != "" {
		return env
	}
	return DefaultConfigPath
}

func (o *Options) defaults() {
	if o.LoadConfig == nil {
		o.LoadConfig = coreconfig.Load
	}
	if o.Bootstrap == nil {
		o.Bootstrap = bootstrap.Run
	}
	if o.NewBot == nil {
		o.NewBot = telegram.NewBot
	}
	if o.RunTelegram == nil {
		o.RunTelegram = telegram.Run
	}
	if o.ShutdownLogger == nil {
		o.ShutdownLogger = logger.Shutdown
	}
	if o.ConnectDB == nil {
		o.ConnectDB = coredatabase.Connect
	}
}

func (o *Options) load() (*coreconfig.Config, error) {
	path := ResolveConfigPath(o.ConfigPath)
	log.Printf("loading config: %s", path)
	cfg, err := o.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: failed to load config: %w", err)
	}
	return cfg, nil
}

// Serve runs the bot and the health server until ctx is done or either fails.
func Serve(ctx context.Context, opts Options) (err error) {
	opts.defaults()
	startedAt := time.Now()

	cfg, err := opts.load()
	if err != nil {
		return err
	}
	res, err := opts.Bootstrap(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if shutdownErr := opts.ShutdownLogger(); shutdownErr != nil {
			log.Printf("logger shutdown error: %v", shutdownErr)
		}
	}()

	bot, err := opts.NewBot(ctx, cfg)
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return fmt.Errorf("cmd: telegram bot: %w", err)
	}

	app, err := NewApp(AppOptions{Config: cfg, Bot: bot, DB: res.DB})
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()

	runOpts := app.RunOptions()
	runOpts.OnStart = func(ctx context.Context, _ *tele.Bot) error {
		logger.Info(ctx, "app", "ready",
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
	runOpts.OnStop = func(ctx context.Context, _ *tele.Bot) error {
		logger.Info(ctx, "app", "shutdown",
			slog.Int("sessions", app.Dispatcher.Sessions()),
		)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := opts.RunTelegram(gctx, bot, runOpts); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("cmd: telegram runtime stopped unexpectedly")
		}
		return nil
	})
	g.Go(func() error {
		return app.Health.Run(gctx)
	})
	return g.Wait()
}

// Migrate applies the journal migrations and exits.
func Migrate(ctx context.Context, opts Options) error {
	opts.defaults()

	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return errors.New("cmd: database is not configured; set DB_HOST")
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("cmd: logger init failed: %w", err)
	}
	defer func() {
		if shutdownErr := opts.ShutdownLogger(); shutdownErr != nil {
			log.Printf("logger shutdown error: %v", shutdownErr)
		}
	}()
	return coredatabase.RunMigrations(ctx, cfg.Database)
}

// History prints the latest journal entries for sender to w, newest first.
func History(ctx context.Context, opts Options, sender string, limit int, w io.Writer) (err error) {
	opts.defaults()

	sender = strings.TrimSpace(sender)
	if sender == "" {
		return errors.New("cmd: sender is required")
	}
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return errors.New("cmd: database is not configured; set DB_HOST")
	}

	db, err := opts.ConnectDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("cmd: journal database: %w", err)
	}
	defer func() {
		err = errors.Join(err, db.Close())
	}()

	entries, err := journal.NewPostgres(db, nil).Recent(ctx, session.SenderID(sender), limit)
	if err != nil {
		return err
	}
	return journal.WriteEntries(w, entries)
}
