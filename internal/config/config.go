// Package config handles loading and validating the application configuration
// from YAML files with environment variable substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Snapshot backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

const minSafetyMargin = 5 * time.Second

// Config is the top-level application configuration.
type Config struct {
	Ebay          EbayConfig          `yaml:"ebay"`
	Queries       []string            `yaml:"queries"`
	Poll          PollConfig          `yaml:"poll"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Server        ServerConfig        `yaml:"server"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// EbayConfig defines eBay API settings.
type EbayConfig struct {
	AppID          string          `yaml:"app_id"`
	CertID         string          `yaml:"cert_id"`
	TokenURL       string          `yaml:"token_url"`
	BrowseURL      string          `yaml:"browse_url"`
	Marketplace    string          `yaml:"marketplace"`
	Scope          string          `yaml:"scope"`
	PageSize       int             `yaml:"page_size"`
	SafetyMargin   time.Duration   `yaml:"safety_margin"`
	TokenTimeout   time.Duration   `yaml:"token_timeout"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines eBay API rate limiting settings.
type RateLimitConfig struct {
	PerSecond  float64 `yaml:"per_second"`
	Burst      int     `yaml:"burst"`
	DailyLimit int64   `yaml:"daily_limit"`
}

// PollConfig defines the poll loop cadence.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Heartbeat is a cron spec for the periodic status message. Empty
	// disables it.
	Heartbeat string `yaml:"heartbeat"`
}

// SnapshotConfig selects how the snapshot is kept and persisted.
type SnapshotConfig struct {
	Mode         string         `yaml:"mode"`    // records, ids
	Backend      string         `yaml:"backend"` // memory, file, postgres
	Path         string         `yaml:"path"`
	LockPath     string         `yaml:"lock_path"`
	MaxAgeCycles uint64         `yaml:"max_age_cycles"`
	Database     DatabaseConfig `yaml:"database"`
}

// DatabaseConfig defines PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolSize int    `yaml:"pool_size"`
}

// DSN returns a PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// NotificationsConfig defines notification targets.
type NotificationsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig defines Discord webhook settings.
type DiscordConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WebhookURL string        `yaml:"webhook_url"`
	Username   string        `yaml:"username"`
	AvatarURL  string        `yaml:"avatar_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ServerConfig defines the ops HTTP server settings.
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TelemetryConfig defines OpenTelemetry export settings. An empty endpoint
// disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, color
}

// Load reads and parses a YAML config file, performing environment variable
// substitution and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path from trusted CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyEbayDefaults(&cfg.Ebay)
	applyPollDefaults(&cfg.Poll)
	applySnapshotDefaults(&cfg.Snapshot)
	applyDiscordDefaults(&cfg.Notifications.Discord)
	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyLoggingDefaults(&cfg.Logging)
}

func applyEbayDefaults(e *EbayConfig) {
	if e.TokenURL == "" {
		e.TokenURL = "https://api.ebay.com/identity/v1/oauth2/token"
	}
	if e.BrowseURL == "" {
		e.BrowseURL = "https://api.ebay.com/buy/browse/v1/item_summary/search"
	}
	if e.Marketplace == "" {
		e.Marketplace = "EBAY_US"
	}
	if e.Scope == "" {
		e.Scope = "https://api.ebay.com/oauth/api_scope"
	}
	if e.PageSize == 0 {
		e.PageSize = 200
	}
	if e.SafetyMargin == 0 {
		e.SafetyMargin = 60 * time.Second
	}
	if e.TokenTimeout == 0 {
		e.TokenTimeout = 10 * time.Second
	}
	if e.RequestTimeout == 0 {
		e.RequestTimeout = 30 * time.Second
	}
	applyRateLimitDefaults(&e.RateLimit)
}

func applyRateLimitDefaults(r *RateLimitConfig) {
	if r.PerSecond == 0 {
		r.PerSecond = 5.0
	}
	if r.Burst == 0 {
		r.Burst = 10
	}
	if r.DailyLimit == 0 {
		r.DailyLimit = 5000
	}
}

func applyPollDefaults(p *PollConfig) {
	if p.Interval == 0 {
		p.Interval = 60 * time.Second
	}
}

func applySnapshotDefaults(s *SnapshotConfig) {
	if s.Mode == "" {
		s.Mode = "records"
	}
	if s.Backend == "" {
		s.Backend = BackendMemory
		if s.Path != "" {
			s.Backend = BackendFile
		}
	}
	if s.Backend == BackendPostgres {
		applyDatabaseDefaults(&s.Database)
	}
}

func applyDatabaseDefaults(d *DatabaseConfig) {
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.PoolSize == 0 {
		d.PoolSize = 4
	}
}

func applyDiscordDefaults(d *DiscordConfig) {
	if d.Timeout == 0 {
		d.Timeout = 10 * time.Second
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 30 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 30 * time.Second
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.ServiceName == "" {
		t.ServiceName = "listing-watcher"
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func validate(cfg *Config) error {
	var errs []error

	if len(cfg.Queries) == 0 {
		errs = append(errs, errors.New("queries must list at least one search query"))
	}
	for i, q := range cfg.Queries {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Errorf("queries[%d] is empty", i))
		}
	}

	errs = append(errs, validateEbay(&cfg.Ebay)...)

	if cfg.Poll.Interval < time.Second {
		errs = append(errs, fmt.Errorf("poll.interval must be at least 1s (got %s)", cfg.Poll.Interval))
	}
	if cfg.Poll.Heartbeat != "" {
		if _, err := cron.ParseStandard(cfg.Poll.Heartbeat); err != nil {
			errs = append(errs, fmt.Errorf("poll.heartbeat: %w", err))
		}
	}

	errs = append(errs, validateSnapshot(&cfg.Snapshot)...)

	if cfg.Notifications.Discord.Enabled && cfg.Notifications.Discord.WebhookURL == "" {
		errs = append(errs, errors.New("notifications.discord.webhook_url is required when discord is enabled"))
	}

	if cfg.Server.Enabled && (cfg.Server.Port < 1 || cfg.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port))
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf(
			"logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "text", "json", "color":
	default:
		errs = append(errs, fmt.Errorf(
			"logging.format must be one of: text, json, color (got %q)", cfg.Logging.Format))
	}

	return errors.Join(errs...)
}

func validateEbay(e *EbayConfig) []error {
	var errs []error
	if e.AppID == "" {
		errs = append(errs, errors.New("ebay.app_id is required"))
	}
	if e.CertID == "" {
		errs = append(errs, errors.New("ebay.cert_id is required"))
	}
	if e.PageSize < 1 || e.PageSize > 200 {
		errs = append(errs, fmt.Errorf("ebay.page_size must be between 1 and 200 (got %d)", e.PageSize))
	}
	if e.SafetyMargin < minSafetyMargin {
		errs = append(errs, fmt.Errorf(
			"ebay.safety_margin must be at least %s (got %s)", minSafetyMargin, e.SafetyMargin))
	}
	if e.RateLimit.PerSecond < 0 || e.RateLimit.Burst < 0 || e.RateLimit.DailyLimit < 0 {
		errs = append(errs, errors.New("ebay.rate_limit values must not be negative"))
	}
	return errs
}

func validateSnapshot(s *SnapshotConfig) []error {
	var errs []error

	switch s.Mode {
	case "records", "ids":
	default:
		errs = append(errs, fmt.Errorf("snapshot.mode must be one of: records, ids (got %q)", s.Mode))
	}

	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.Path == "" {
			errs = append(errs, errors.New("snapshot.path is required when backend is file"))
		}
	case BackendPostgres:
		if s.Database.Host == "" {
			errs = append(errs, errors.New("snapshot.database.host is required when backend is postgres"))
		}
		if s.Database.Name == "" {
			errs = append(errs, errors.New("snapshot.database.name is required when backend is postgres"))
		}
		if s.Database.User == "" {
			errs = append(errs, errors.New("snapshot.database.user is required when backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"snapshot.backend must be one of: memory, file, postgres (got %q)", s.Backend))
	}

	return errs
}
