package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/dialogue"
	"github.com/m3rciful/menubot/core/health"
	"github.com/m3rciful/menubot/core/inbound"
	"github.com/m3rciful/menubot/core/journal"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/outbox"
	"github.com/m3rciful/menubot/core/telegram"
	"github.com/m3rciful/menubot/core/timeout"
)

// App holds the assembled components of one bot process.
type App struct {
	Config     *coreconfig.Config
	Registry   *prometheus.Registry
	Metrics    *inbound.Metrics
	Outbox     *outbox.Outbox
	Dispatcher *inbound.Dispatcher
	Health     *health.Server

	journalOut *outbox.Outbox
	db         *sqlx.DB
}

// AppOptions are the external dependencies of NewApp. DB and Clock are optional.
type AppOptions struct {
	Config *coreconfig.Config
	Bot    telegram.Sender
	DB     *sqlx.DB
	Clock  timeout.Clock
}

// NewApp wires config, transport and storage into a ready App.
func NewApp(opts AppOptions) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: nil config provided")
	}
	if opts.Bot == nil {
		return nil, errors.New("app: nil bot provided")
	}

	catalog, err := dialogue.LoadCatalog(cfg.Session.Locale, cfg.Session.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("app: dialogue catalog: %w", err)
	}
	engine, err := dialogue.NewEngine(catalog)
	if err != nil {
		return nil, fmt.Errorf("app: dialogue engine: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := inbound.MustNewMetrics(reg)

	a := &App{Config: cfg, Registry: reg, Metrics: metrics, db: opts.DB}
	a.Outbox = outbox.New(outbox.Options{
		QueueSize:    cfg.Outbox.QueueSize,
		Workers:      cfg.Outbox.Workers,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryBackoff: cfg.RetryBackoff(),
		Component:    "tg.sender",
		OnFailure:    func(string, error) { metrics.ReplyFailed() },
	})

	var rec journal.Recorder = journal.Nop{}
	if opts.DB != nil {
		a.journalOut = outbox.New(outbox.Options{
			Workers:   1,
			Component: "journal",
		})
		rec = journal.NewPostgres(opts.DB, a.journalOut)
	}

	a.Dispatcher, err = inbound.New(inbound.Options{
		Engine:  engine,
		Replier: telegram.NewReplier(opts.Bot, a.Outbox),
		Window:  cfg.InactivityWindow(),
		Clock:   opts.Clock,
		Metrics: metrics,
		Journal: rec,
	})
	if err != nil {
		a.closeOutboxes()
		return nil, fmt.Errorf("app: dispatcher: %w", err)
	}

	a.Health = health.New(health.Options{
		Listen:   cfg.HTTP.Listen,
		Port:     cfg.HTTP.Port,
		Gatherer: reg,
	})

	logger.Info(context.Background(), "app", "wired",
		slog.String("status", "ok"),
		slog.Duration("window", cfg.InactivityWindow()),
		slog.Bool("journal", opts.DB != nil),
	)
	return a, nil
}

// RunOptions returns the Telegram middleware chain and routes for the app.
func (a *App) RunOptions() telegram.RunOptions {
	return telegram.RunOptions{
		Middlewares: telegram.DefaultMiddlewares(),
		Routes:      []telegram.Route{telegram.TextRoute(a.Dispatcher)},
	}
}

// Close cancels pending expiries, drains the outboxes and closes the database.
func (a *App) Close() error {
	a.Dispatcher.Stop()
	a.closeOutboxes()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("app: close database: %w", err)
		}
	}
	return nil
}

func (a *App) closeOutboxes() {
	a.Outbox.Close()
	if a.journalOut != nil {
		a.journalOut.Close()
	}
}
