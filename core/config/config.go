package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by Normalize when no bot token was configured.
var ErrMissingToken = errors.New("telegram token is required")

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// SessionConfig controls the dialogue flow and inactivity expiry.
type SessionConfig struct {
	InactivitySeconds int    `yaml:"inactivity_seconds" envconfig:"SESSION_INACTIVITY_SECONDS"`
	Locale            string `yaml:"locale" envconfig:"SESSION_LOCALE"`
	// CatalogFile optionally points to a YAML file overriding the built-in texts.
	CatalogFile string `yaml:"catalog_file" envconfig:"SESSION_CATALOG_FILE"`
}

// HTTPConfig configures the liveness and metrics listener.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
}

// OutboxConfig tunes the asynchronous worker pool used for outbound calls.
type OutboxConfig struct {
	Workers        int `yaml:"workers" envconfig:"OUTBOX_WORKERS"`
	QueueSize      int `yaml:"queue_size" envconfig:"OUTBOX_QUEUE_SIZE"`
	MaxRetries     int `yaml:"max_retries" envconfig:"OUTBOX_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"OUTBOX_RETRY_BACKOFF_MS"`
}

// DatabaseConfig holds Postgres settings for the session journal.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir is resolved relative to the working directory.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Enabled reports whether a database was configured. The journal is skipped otherwise.
func (c DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DefaultInactivitySeconds is the idle window after which a session expires.
	DefaultInactivitySeconds = 300
	// DefaultHTTPPort is the liveness listener port used when PORT is unset.
	DefaultHTTPPort = 3000
	// DefaultLocale selects the built-in English catalog.
	DefaultLocale = "en"
)

// Config aggregates the whole application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Session  SessionConfig  `yaml:"session"`
	HTTP     HTTPConfig     `yaml:"http"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
}

// InactivityWindow is the session expiry window as a duration.
func (c *Config) InactivityWindow() time.Duration {
	return time.Duration(c.Session.InactivitySeconds) * time.Second
}

// RetryBackoff is the outbox backoff step as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Outbox.RetryBackoffMS) * time.Millisecond
}

// Load reads configuration from an optional YAML file, a .env file and environment variables.
// A missing file at path is not an error; the environment alone may configure the bot.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	switch {
	case cfg.Session.InactivitySeconds == 0:
		cfg.Session.InactivitySeconds = DefaultInactivitySeconds
	case cfg.Session.InactivitySeconds < 0:
		return fmt.Errorf("session.inactivity_seconds must be > 0")
	}
	cfg.Session.Locale = strings.TrimSpace(cfg.Session.Locale)
	if cfg.Session.Locale == "" {
		cfg.Session.Locale = DefaultLocale
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = DefaultHTTPPort
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", cfg.HTTP.Port)
	}
	if cfg.Telegram.RunMode == RunModeWebhook && cfg.Webhook.Port == cfg.HTTP.Port {
		return fmt.Errorf("webhook.port and http.port must differ, both are %d", cfg.HTTP.Port)
	}

	if cfg.Database.Enabled() {
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = "migrations"
		}
	}

	if cfg.Outbox.Workers < 0 || cfg.Outbox.QueueSize < 0 || cfg.Outbox.MaxRetries < 0 || cfg.Outbox.RetryBackoffMS < 0 {
		return fmt.Errorf("outbox settings must be >= 0")
	}
	return nil
}
