// Package config loads the scheduler configuration from TOML, .env files
// and ASSET_SCHED_* environment variables, in that order of precedence
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/asset-scheduler/internal/batch"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/validator"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "ASSET_SCHED_"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Source        SourceConfig        `toml:"source"`
	Platform      PlatformConfig      `toml:"platform"`
	Execution     ExecutionConfig     `toml:"execution"`
	Schedule      ScheduleConfig      `toml:"schedule"`
	Limits        LimitsConfig        `toml:"limits"`
	State         StateConfig         `toml:"state"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Jobs          []JobConfig         `toml:"job" env:"-"`
}

// JobConfig is a cron trigger as written in TOML
type JobConfig struct {
	Name    string   `toml:"name"`
	Cron    string   `toml:"cron"`
	Mode    string   `toml:"mode"`
	Timeout Duration `toml:"timeout"`
}

// BatchJobs converts the configured triggers to batch jobs
func (c *Config) BatchJobs() []batch.Job {
	out := make([]batch.Job, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		out = append(out, batch.Job{Name: j.Name, Cron: j.Cron, Mode: domain.RunMode(j.Mode), Timeout: j.Timeout.D()})
	}
	return out
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	AccountName  string `toml:"account_name" env:"ACCOUNT_NAME"`
	Timezone     string `toml:"timezone" env:"TIMEZONE"`
	DatabasePath string `toml:"database_path" env:"DATABASE_PATH"`
	LogLevel     string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string `toml:"log_format" env:"LOG_FORMAT"`
}

// Source kinds
const (
	SourceXLSX    = "xlsx"
	SourceGSheets = "gsheets"
)

// SourceConfig selects where the schedule workbook lives
type SourceConfig struct {
	Kind            string `toml:"kind" env:"SOURCE_KIND"`
	Path            string `toml:"path" env:"SOURCE_PATH"`
	SpreadsheetID   string `toml:"spreadsheet_id" env:"SPREADSHEET_ID"`
	CredentialsFile string `toml:"credentials_file" env:"GOOGLE_CREDENTIALS_FILE"`
	URL             string `toml:"url" env:"SOURCE_URL"`
}

// PlatformConfig holds the campaign platform gateway settings
type PlatformConfig struct {
	BaseURL         string   `toml:"base_url" env:"PLATFORM_BASE_URL"`
	CustomerID      string   `toml:"customer_id" env:"PLATFORM_CUSTOMER_ID"`
	CredentialsFile string   `toml:"credentials_file" env:"PLATFORM_CREDENTIALS_FILE"`
	Scopes          []string `toml:"scopes" env:"PLATFORM_SCOPES"`
	Timeout         Duration `toml:"timeout" env:"PLATFORM_TIMEOUT"`
	ChunkSize       int      `toml:"chunk_size" env:"PLATFORM_CHUNK_SIZE"`
}

// ExecutionConfig holds mutation pacing, retry and verification settings
type ExecutionConfig struct {
	DryRun             bool     `toml:"dry_run" env:"DRY_RUN"`
	Pacing             Duration `toml:"pacing" env:"PACING"`
	Jitter             Duration `toml:"jitter" env:"JITTER"`
	MaxAttempts        int      `toml:"max_attempts" env:"MAX_ATTEMPTS"`
	RetryBase          Duration `toml:"retry_base" env:"RETRY_BASE"`
	VerifyAttempts     int      `toml:"verify_attempts" env:"VERIFY_ATTEMPTS"`
	VerifyInitialDelay Duration `toml:"verify_initial_delay" env:"VERIFY_INITIAL_DELAY"`
	VerifyInterval     Duration `toml:"verify_interval" env:"VERIFY_INTERVAL"`
}

// ScheduleConfig holds schedule evaluation settings
type ScheduleConfig struct {
	HorizonDays int `toml:"horizon_days" env:"HORIZON_DAYS"`
}

// LimitsConfig overrides the per-group asset limits
type LimitsConfig struct {
	Headline     TextLimitsConfig `toml:"headline" envPrefix:"LIMITS_HEADLINE_"`
	LongHeadline TextLimitsConfig `toml:"long_headline" envPrefix:"LIMITS_LONG_HEADLINE_"`
	Description  TextLimitsConfig `toml:"description" envPrefix:"LIMITS_DESCRIPTION_"`
	MaxImages    int              `toml:"max_images" env:"LIMITS_MAX_IMAGES"`
}

// TextLimitsConfig holds the limits of one text type
type TextLimitsConfig struct {
	Min    int `toml:"min" env:"MIN"`
	Max    int `toml:"max" env:"MAX"`
	MaxLen int `toml:"max_len" env:"MAX_LEN"`
	Warn   int `toml:"warn" env:"WARN"`
}

func (t TextLimitsConfig) limits() validator.Limits {
	return validator.Limits{Min: t.Min, Max: t.Max, MaxLen: t.MaxLen, Warn: t.Warn}
}

func textLimitsConfig(l validator.Limits) TextLimitsConfig {
	return TextLimitsConfig{Min: l.Min, Max: l.Max, MaxLen: l.MaxLen, Warn: l.Warn}
}

// Rules converts the configured limits for the validator
func (c *Config) Rules() validator.Rules {
	return validator.Rules{
		Text: map[domain.TextType]validator.Limits{
			domain.Headline:     c.Limits.Headline.limits(),
			domain.LongHeadline: c.Limits.LongHeadline.limits(),
			domain.Description:  c.Limits.Description.limits(),
		},
		MaxImages: c.Limits.MaxImages,
	}
}

// State backends
const (
	StateSQLite = "sqlite"
	StateRedis  = "redis"
)

// StateConfig selects where the schedule fingerprint is kept
type StateConfig struct {
	Backend     string `toml:"backend" env:"STATE_BACKEND"`
	RedisAddr   string `toml:"redis_addr" env:"REDIS_ADDR"`
	RedisPrefix string `toml:"redis_prefix" env:"REDIS_PREFIX"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop" env:"NOTIFY_DESKTOP"`
	SlackWebhook string `toml:"slack_webhook" env:"SLACK_WEBHOOK"`
	RowLimit     int    `toml:"row_limit" env:"NOTIFY_ROW_LIMIT"`
}

// WebConfig holds status server settings
type WebConfig struct {
	Port int    `toml:"port" env:"WEB_PORT"`
	Host string `toml:"host" env:"WEB_HOST"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	rules := validator.DefaultRules()
	return &Config{
		General: GeneralConfig{
			Timezone:     "UTC",
			DatabasePath: filepath.Join(home, ".asset-scheduler", "scheduler.db"),
			LogLevel:     "info",
			LogFormat:    "text",
		},
		Source: SourceConfig{
			Kind: SourceXLSX,
			Path: "schedule.xlsx",
		},
		Platform: PlatformConfig{
			Timeout:   Duration(30 * time.Second),
			ChunkSize: 200,
		},
		Execution: ExecutionConfig{
			Pacing:             Duration(750 * time.Millisecond),
			Jitter:             Duration(250 * time.Millisecond),
			MaxAttempts:        3,
			RetryBase:          Duration(time.Second),
			VerifyAttempts:     5,
			VerifyInitialDelay: Duration(500 * time.Millisecond),
			VerifyInterval:     Duration(time.Second),
		},
		Schedule: ScheduleConfig{
			HorizonDays: 30,
		},
		Limits: LimitsConfig{
			Headline:     textLimitsConfig(rules.Text[domain.Headline]),
			LongHeadline: textLimitsConfig(rules.Text[domain.LongHeadline]),
			Description:  textLimitsConfig(rules.Text[domain.Description]),
			MaxImages:    rules.MaxImages,
		},
		State: StateConfig{
			Backend:     StateSQLite,
			RedisPrefix: "asset-scheduler",
		},
		Notifications: NotificationsConfig{
			Desktop:  false,
			RowLimit: 50,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Jobs: defaultJobs(),
	}
}

// Load reads configuration from a TOML file, falling back to defaults, and
// applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		// [[job]] tables replace the default triggers
		cfg.Jobs = nil
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(cfg.Jobs) == 0 {
			cfg.Jobs = defaultJobs()
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Source.Path = ExpandPath(cfg.Source.Path)
	cfg.Source.CredentialsFile = ExpandPath(cfg.Source.CredentialsFile)
	cfg.Platform.CredentialsFile = ExpandPath(cfg.Platform.CredentialsFile)

	return cfg, nil
}

// LoadDotEnv loads the given .env files that exist and returns how many were
// loaded. Variables already set in the environment win.
func LoadDotEnv(files ...string) (int, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Location returns the account timezone
func (c *Config) Location() (*time.Location, error) {
	if c.General.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.General.Timezone)
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("general.timezone: %w", err))
	}

	switch c.Source.Kind {
	case SourceXLSX:
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required for xlsx sources"))
		}
	case SourceGSheets:
		if c.Source.SpreadsheetID == "" {
			errs = append(errs, errors.New("source.spreadsheet_id is required for gsheets sources"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind %q must be %s or %s", c.Source.Kind, SourceXLSX, SourceGSheets))
	}

	if c.Platform.BaseURL == "" {
		errs = append(errs, errors.New("platform.base_url is required"))
	}
	if c.Platform.CustomerID == "" {
		errs = append(errs, errors.New("platform.customer_id is required"))
	}
	if c.Platform.ChunkSize <= 0 {
		errs = append(errs, errors.New("platform.chunk_size must be positive"))
	}

	if c.Execution.Pacing < 0 || c.Execution.Jitter < 0 {
		errs = append(errs, errors.New("execution.pacing and execution.jitter must not be negative"))
	}
	if c.Execution.MaxAttempts < 1 {
		errs = append(errs, errors.New("execution.max_attempts must be at least 1"))
	}
	if c.Execution.VerifyAttempts < 1 {
		errs = append(errs, errors.New("execution.verify_attempts must be at least 1"))
	}
	if c.Schedule.HorizonDays < 0 {
		errs = append(errs, errors.New("schedule.horizon_days must not be negative"))
	}
	if err := c.Rules().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("limits: %w", err))
	}

	switch c.State.Backend {
	case StateSQLite:
	case StateRedis:
		if c.State.RedisAddr == "" {
			errs = append(errs, errors.New("state.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("state.backend %q must be %s or %s", c.State.Backend, StateSQLite, StateRedis))
	}

	for i, j := range c.BatchJobs() {
		if err := j.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func defaultJobs() []JobConfig {
	var out []JobConfig
	for _, j := range batch.DefaultJobs() {
		out = append(out, JobConfig{Name: j.Name, Cron: j.Cron, Mode: string(j.Mode), Timeout: Duration(j.Timeout)})
	}
	return out
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// LocalConfigName is the per-directory config file looked up by FindLocalConfig
const LocalConfigName = ".asset-sched.toml"

// FindLocalConfig searches the working directory and its parents for a
// local config file and returns its path, or "" when there is none
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads path when given, else the nearest local config,
// else the default config file
func LoadWithLocalFallback(path string) (*Config, error) {
	if path == "" {
		path = FindLocalConfig()
	}
	if path == "" {
		path = DefaultConfigPath()
	}
	return Load(path)
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "asset-scheduler", "config.toml")
}
