// Package config loads application configuration from defaults, an optional
// YAML file and UPTIME_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "UPTIME_"

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Log         LogConfig         `koanf:"log"`
	Queue       QueueConfig       `koanf:"queue"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Checker     CheckerConfig     `koanf:"checker"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	StatusPage  StatusPageConfig  `koanf:"statuspage"`
	Alerts      AlertsConfig      `koanf:"alerts"`
	Push        PushConfig        `koanf:"push"`
	CORS        CORSConfig        `koanf:"cors"`
}

type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type QueueConfig struct {
	Driver            string        `koanf:"driver"` // postgres or nats
	NATSURL           string        `koanf:"nats_url"`
	StreamName        string        `koanf:"stream_name"`
	Visibility        time.Duration `koanf:"visibility"`
	HandlerTimeout    time.Duration `koanf:"handler_timeout"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	BatchSize         int           `koanf:"batch_size"`
	CheckWorkers      int           `koanf:"check_workers"`
	AlertWorkers      int           `koanf:"alert_workers"`
}

type SchedulerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Spec        string        `koanf:"spec"`
	LeaseTTL    time.Duration `koanf:"lease_ttl"`
	BatchSize   int           `koanf:"batch_size"`
	MaxBatches  int           `koanf:"max_batches"`
	MinInterval time.Duration `koanf:"min_interval"`
	MaxInterval time.Duration `koanf:"max_interval"`
}

type CheckerConfig struct {
	MinTimeout       time.Duration `koanf:"min_timeout"`
	MaxTimeout       time.Duration `koanf:"max_timeout"`
	DefaultTimeout   time.Duration `koanf:"default_timeout"`
	MinThreshold     int           `koanf:"min_threshold"`
	MaxThreshold     int           `koanf:"max_threshold"`
	DefaultThreshold int           `koanf:"default_threshold"`
	UserAgent        string        `koanf:"user_agent"`
	EventBuffer      int           `koanf:"event_buffer"`
}

type CoordinatorConfig struct {
	// URL of a remote coordinator. Empty means the in-process coordinator is used.
	URL          string        `koanf:"url"`
	ServiceToken string        `koanf:"service_token"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	Shards       int           `koanf:"shards"`
	Timeout      time.Duration `koanf:"timeout"`
}

type StatusPageConfig struct {
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	ResolvedWindow time.Duration `koanf:"resolved_window"`
	IncidentLimit  int           `koanf:"incident_limit"`
	RebuildTimeout time.Duration `koanf:"rebuild_timeout"`
}

type AlertsConfig struct {
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
	UserAgent      string        `koanf:"user_agent"`
	RateLimit      float64       `koanf:"rate_limit"`
	RateBurst      int           `koanf:"rate_burst"`
}

type PushConfig struct {
	Enabled bool `koanf:"enabled"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                "0.0.0.0",
		"server.port":                "8080",
		"server.metrics_port":        "9090",
		"server.read_timeout":        "15s",
		"server.read_header_timeout": "5s",
		"server.write_timeout":       "15s",
		"server.idle_timeout":        "60s",

		"database.max_open_conns":    25,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "5m",
		"database.connect_timeout":   "30s",
		"database.connect_attempts":  5,
		"database.auto_migrate":      true,

		"log.level":  "info",
		"log.format": "json",

		"queue.driver":             "postgres",
		"queue.stream_name":        "UPTIME",
		"queue.visibility":         "60s",
		"queue.handler_timeout":    "45s",
		"queue.max_attempts":       5,
		"queue.initial_backoff":    "1s",
		"queue.max_backoff":        "5m",
		"queue.backoff_multiplier": 2.0,
		"queue.poll_interval":      "1s",
		"queue.batch_size":         20,
		"queue.check_workers":      8,
		"queue.alert_workers":      2,

		"scheduler.enabled":      true,
		"scheduler.spec":         "@every 30s",
		"scheduler.lease_ttl":    "90s",
		"scheduler.batch_size":   200,
		"scheduler.max_batches":  5,
		"scheduler.min_interval": "30s",
		"scheduler.max_interval": "1h",

		"checker.min_timeout":       "1s",
		"checker.max_timeout":       "30s",
		"checker.default_timeout":   "8s",
		"checker.min_threshold":     1,
		"checker.max_threshold":     10,
		"checker.default_threshold": 3,
		"checker.event_buffer":      1024,

		"coordinator.token_ttl": "1m",
		"coordinator.shards":    64,
		"coordinator.timeout":   "10s",

		"statuspage.cache_ttl":       "60s",
		"statuspage.resolved_window": "720h",
		"statuspage.incident_limit":  50,
		"statuspage.rebuild_timeout": "10s",

		"alerts.webhook_timeout": "8s",
		"alerts.rate_limit":      10.0,
		"alerts.rate_burst":      20,

		"push.enabled": true,

		"cors.allowed_origins": []string{"*"},
	}
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// UPTIME_SCHEDULER__LEASE_TTL -> scheduler.lease_ttl
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Scheduler.LeaseTTL <= 0 {
		errs = append(errs, errors.New("scheduler.lease_ttl must be positive"))
	}
	if c.Scheduler.BatchSize <= 0 || c.Scheduler.MaxBatches <= 0 {
		errs = append(errs, errors.New("scheduler.batch_size and scheduler.max_batches must be positive"))
	}
	if c.Scheduler.MinInterval <= 0 || c.Scheduler.MinInterval > c.Scheduler.MaxInterval {
		errs = append(errs, errors.New("scheduler interval bounds are invalid"))
	}
	if c.Checker.MinTimeout <= 0 || c.Checker.MinTimeout > c.Checker.MaxTimeout {
		errs = append(errs, errors.New("checker timeout bounds are invalid"))
	}
	if c.Checker.MinThreshold < 1 || c.Checker.MinThreshold > c.Checker.MaxThreshold {
		errs = append(errs, errors.New("checker threshold bounds are invalid"))
	}
	switch c.Queue.Driver {
	case "postgres":
	case "nats":
		if c.Queue.NATSURL == "" {
			errs = append(errs, errors.New("queue.nats_url is required for nats driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.driver %q", c.Queue.Driver))
	}
	if c.Queue.HandlerTimeout <= 0 || c.Queue.HandlerTimeout >= c.Queue.Visibility {
		errs = append(errs, errors.New("queue.handler_timeout must be positive and below queue.visibility"))
	}
	if c.Checker.MaxTimeout+c.Coordinator.Timeout >= c.Queue.HandlerTimeout {
		errs = append(errs, errors.New("checker.max_timeout plus coordinator.timeout must be below queue.handler_timeout"))
	}
	if c.Alerts.WebhookTimeout >= c.Queue.HandlerTimeout {
		errs = append(errs, errors.New("alerts.webhook_timeout must be below queue.handler_timeout"))
	}
	if c.Coordinator.URL != "" && c.Coordinator.ServiceToken == "" {
		errs = append(errs, errors.New("coordinator.service_token is required with coordinator.url"))
	}
	if c.StatusPage.CacheTTL <= 0 {
		errs = append(errs, errors.New("statuspage.cache_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// Bounds returns the clamping limits for monitor settings.
func (c *Config) Bounds() domain.Bounds {
	return domain.Bounds{
		MinInterval:      c.Scheduler.MinInterval,
		MaxInterval:      c.Scheduler.MaxInterval,
		MinTimeout:       c.Checker.MinTimeout,
		MaxTimeout:       c.Checker.MaxTimeout,
		DefaultTimeout:   c.Checker.DefaultTimeout,
		MinThreshold:     c.Checker.MinThreshold,
		MaxThreshold:     c.Checker.MaxThreshold,
		DefaultThreshold: c.Checker.DefaultThreshold,
	}
}
