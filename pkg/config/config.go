package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/scoring"
)

// EnvPrefix is prepended to every environment variable, e.g. A11Y_AUDIT_LEVEL.
const EnvPrefix = "A11Y"

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var (
	ErrInvalidLevel       = errors.New("invalid WCAG level")
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrInvalidTimeout     = errors.New("timeouts must be positive")
	ErrInvalidRetries     = errors.New("max retries must not be negative")
	ErrInvalidPool        = errors.New("invalid browser pool size")
	ErrUnknownBackend     = errors.New("unknown state backend")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidPenalty     = errors.New("scoring penalties must not be negative")
	ErrInvalidWindow      = errors.New("browser window size must be positive")
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Store    StoreConfig    `mapstructure:"store"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Scoring  scoring.Policy `mapstructure:"scoring"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuditConfig struct {
	Level        string        `mapstructure:"level"`
	Concurrency  int           `mapstructure:"concurrency"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// RateLimit caps navigations per second; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	Persist   bool    `mapstructure:"persist"`
}

type BrowserConfig struct {
	ExecPath        string        `mapstructure:"exec_path"`
	UserAgent       string        `mapstructure:"user_agent"`
	Headful         bool          `mapstructure:"headful"`
	WindowWidth     int           `mapstructure:"window_width"`
	WindowHeight    int           `mapstructure:"window_height"`
	DisableImages   bool          `mapstructure:"disable_images"`
	MaxInstances    int           `mapstructure:"max_instances"`
	MinInstances    int           `mapstructure:"min_instances"`
	TabsPerInstance int           `mapstructure:"tabs_per_instance"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Dir holds the SQLite database.
	Dir string `mapstructure:"dir"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JobsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DefaultStoreDir is where the SQLite database lives unless configured.
func DefaultStoreDir() string {
	return filepath.Join(xdg.DataHome, "a11y-audit")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("audit.level", "AA")
	v.SetDefault("audit.concurrency", 2)
	v.SetDefault("audit.page_timeout", 30*time.Second)
	v.SetDefault("audit.max_retries", 2)
	v.SetDefault("audit.retry_backoff", 2*time.Second)
	v.SetDefault("audit.rate_limit", 0.0)
	v.SetDefault("audit.persist", false)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.headful", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.disable_images", false)
	v.SetDefault("browser.max_instances", 2)
	v.SetDefault("browser.min_instances", 0)
	v.SetDefault("browser.tabs_per_instance", 2)
	v.SetDefault("browser.acquire_timeout", 30*time.Second)
	v.SetDefault("browser.health_interval", 30*time.Second)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.dir", DefaultStoreDir())

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "user")
	v.SetDefault("postgres.password", "password")
	v.SetDefault("postgres.db", "a11y_audit")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jobs.poll_interval", 2*time.Second)

	p := scoring.DefaultPolicy()
	v.SetDefault("scoring.severe_penalty", p.SeverePenalty)
	v.SetDefault("scoring.minor_penalty", p.MinorPenalty)
	v.SetDefault("scoring.no_headings_penalty", p.NoHeadingsPenalty)
	v.SetDefault("scoring.missing_language_penalty", p.MissingLanguagePenalty)
	v.SetDefault("scoring.unlabeled_penalty", p.UnlabeledPenalty)
	v.SetDefault("scoring.missing_alt_penalty", p.MissingAltPenalty)
	v.SetDefault("scoring.low_contrast_penalty", p.LowContrastPenalty)
}

// Load reads configuration from an optional file and A11Y_* environment
// variables. Nested keys map to variables with dots replaced by underscores,
// so audit.page_timeout is A11Y_AUDIT_PAGE_TIMEOUT. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// AuditLevel returns the parsed WCAG level.
func (c *Config) AuditLevel() (entity.Level, error) {
	l, err := entity.ParseLevel(c.Audit.Level)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, c.Audit.Level)
	}
	return l, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.AuditLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Audit.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Audit.Concurrency))
	}
	if c.Audit.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidRetries, c.Audit.MaxRetries))
	}
	for name, d := range map[string]time.Duration{
		"audit.page_timeout":      c.Audit.PageTimeout,
		"browser.acquire_timeout": c.Browser.AcquireTimeout,
		"browser.health_interval": c.Browser.HealthInterval,
		"jobs.poll_interval":      c.Jobs.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s=%s", ErrInvalidTimeout, name, d))
		}
	}
	if c.Browser.MaxInstances < 1 {
		errs = append(errs, fmt.Errorf("%w: max_instances=%d", ErrInvalidPool, c.Browser.MaxInstances))
	}
	if c.Browser.TabsPerInstance < 1 {
		errs = append(errs, fmt.Errorf("%w: tabs_per_instance=%d", ErrInvalidPool, c.Browser.TabsPerInstance))
	}
	if c.Browser.MinInstances < 0 || c.Browser.MinInstances > c.Browser.MaxInstances {
		errs = append(errs, fmt.Errorf("%w: min_instances=%d exceeds max_instances=%d", ErrInvalidPool, c.Browser.MinInstances, c.Browser.MaxInstances))
	}
	if c.Browser.WindowWidth < 1 || c.Browser.WindowHeight < 1 {
		errs = append(errs, fmt.Errorf("%w: %dx%d", ErrInvalidWindow, c.Browser.WindowWidth, c.Browser.WindowHeight))
	}
	for _, p := range []struct {
		key   string
		value float64
	}{
		{"severe_penalty", c.Scoring.SeverePenalty},
		{"minor_penalty", c.Scoring.MinorPenalty},
		{"no_headings_penalty", c.Scoring.NoHeadingsPenalty},
		{"missing_language_penalty", c.Scoring.MissingLanguagePenalty},
		{"unlabeled_penalty", c.Scoring.UnlabeledPenalty},
		{"missing_alt_penalty", c.Scoring.MissingAltPenalty},
		{"low_contrast_penalty", c.Scoring.LowContrastPenalty},
	} {
		if p.value < 0 {
			errs = append(errs, fmt.Errorf("%w: scoring.%s=%g", ErrInvalidPenalty, p.key, p.value))
		}
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format))
	}
	return errors.Join(errs...)
}
