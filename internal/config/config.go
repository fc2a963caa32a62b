package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultSyncLookbackWeeks     = 4
	DefaultActivityLimit         = 200
	DefaultUpcomingDays          = 7
	DefaultStravaTimeoutSeconds  = 30
	DefaultReportCacheTTLSeconds = 300
	DefaultReportCacheSizeMB     = 10
	DefaultSyncLockTTLSeconds    = 600
	DefaultSyncRateLimitPerMin   = 6
	DefaultDataDir               = "./strava_data"
	DefaultStravaBaseURL         = "https://www.strava.com/api/v3"
	DefaultStravaAuthURL         = "https://www.strava.com/oauth/authorize"
	DefaultStravaTokenURL        = "https://www.strava.com/oauth/token"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsPort int    `toml:"metrics_port"`

	// browser origins allowed to call the API; requests without an Origin are always let through
	AllowedOrigins []string `toml:"allowed_origins"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// storage
	DataDir string `toml:"data_dir"`

	// redis, optional: empty host disables the distributed sync lock and the rate limiter
	RedisHost string `toml:"redis_host"`
	RedisPort int    `toml:"redis_port"`

	// sync and reporting
	SyncLookbackWeeks     int `toml:"sync_lookback_weeks"`
	ActivityLimit         int `toml:"activity_limit"`
	UpcomingDays          int `toml:"upcoming_days"`
	ReportCacheTTLSeconds int `toml:"report_cache_ttl_seconds"`
	ReportCacheSizeMB     int `toml:"report_cache_size_mb"`
	SyncLockTTLSeconds    int `toml:"sync_lock_ttl_seconds"`
	SyncRateLimitPerMin   int `toml:"sync_rate_limit_per_min"`

	// strava
	StravaBaseURL        string `toml:"strava_base_url"`
	StravaAuthURL        string `toml:"strava_auth_url"`
	StravaTokenURL       string `toml:"strava_token_url"`
	StravaRedirectURL    string `toml:"strava_redirect_url"`
	StravaTimeoutSeconds int    `toml:"strava_timeout_seconds"`

	// backups
	BackupsGDriveFolderID  string `toml:"backups_gdrive_folder_id"`
	BackupsCredentialsFile string `toml:"backups_credentials_file"`
	BackupsTempDir         string `toml:"backups_temp_dir"`
	BackupsIntervalHours   int    `toml:"backups_interval_hours"`

	// secrets, never read from the toml file
	StravaClientID     string `toml:"-"`
	StravaClientSecret string `toml:"-"`
	StravaRefreshToken string `toml:"-"`
	RedisPassword      string `toml:"-"`
	SentryDSN          string `toml:"-"`
	HoneycombEnabled   bool   `toml:"-"`
	// empty disables API token checks
	APIToken string `toml:"-"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}
	return cfg, nil
}

// Load reads the env section of the TOML file at configPath, then applies
// environment overrides and defaults. A .env file next to the working
// directory is loaded first when present.
func Load(env, configPath string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		log.Warnf("load .env file: %s", err)
	}

	var t Toml
	if _, err := toml.DecodeFile(configPath, &t); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", configPath, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a config with only defaults and environment overrides applied.
// Used by the CLI and the stdio MCP server when no config file is given.
func Default() *Config {
	if err := loadDotEnv(); err != nil {
		log.Warnf("load .env file: %s", err)
	}
	cfg := &Config{Environment: "development", LogLevel: "info"}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// loadDotEnv loads the given env files, .env by default. Missing files are not an error.
func loadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.StravaClientID = os.Getenv("STRAVA_CLIENT_ID")
	c.StravaClientSecret = os.Getenv("STRAVA_CLIENT_SECRET")
	c.StravaRefreshToken = os.Getenv("STRAVA_REFRESH_TOKEN")
	c.RedisPassword = os.Getenv("RUNCOACH_REDIS_PASS")
	c.SentryDSN = os.Getenv("SENTRY_DSN")
	c.HoneycombEnabled = os.Getenv("HONEYCOMB_ENABLED") == "true"
	c.APIToken = os.Getenv("RUNCOACH_API_TOKEN")
	if dataDir := os.Getenv("STRAVA_DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.SyncLookbackWeeks <= 0 {
		c.SyncLookbackWeeks = DefaultSyncLookbackWeeks
	}
	if c.ActivityLimit <= 0 {
		c.ActivityLimit = DefaultActivityLimit
	}
	// negative upcoming days is meaningful: no cap
	if c.UpcomingDays == 0 {
		c.UpcomingDays = DefaultUpcomingDays
	}
	if c.ReportCacheTTLSeconds <= 0 {
		c.ReportCacheTTLSeconds = DefaultReportCacheTTLSeconds
	}
	if c.ReportCacheSizeMB <= 0 {
		c.ReportCacheSizeMB = DefaultReportCacheSizeMB
	}
	if c.SyncLockTTLSeconds <= 0 {
		c.SyncLockTTLSeconds = DefaultSyncLockTTLSeconds
	}
	if c.SyncRateLimitPerMin <= 0 {
		c.SyncRateLimitPerMin = DefaultSyncRateLimitPerMin
	}
	if c.StravaBaseURL == "" {
		c.StravaBaseURL = DefaultStravaBaseURL
	}
	if c.StravaAuthURL == "" {
		c.StravaAuthURL = DefaultStravaAuthURL
	}
	if c.StravaTokenURL == "" {
		c.StravaTokenURL = DefaultStravaTokenURL
	}
	if c.StravaRedirectURL == "" {
		c.StravaRedirectURL = "http://localhost:8089/exchange_token"
	}
	if c.StravaTimeoutSeconds <= 0 {
		c.StravaTimeoutSeconds = DefaultStravaTimeoutSeconds
	}
	if c.BackupsTempDir == "" {
		c.BackupsTempDir = os.TempDir()
	}
	if c.BackupsIntervalHours <= 0 {
		c.BackupsIntervalHours = 24
	}
}

func (c *Config) RunsDir() string {
	return filepath.Join(c.DataDir, "run_data")
}

func (c *Config) PlansDir() string {
	return filepath.Join(c.DataDir, "training_plans")
}

func (c *Config) SyncLookback() time.Duration {
	return time.Duration(c.SyncLookbackWeeks) * 7 * 24 * time.Hour
}

func (c *Config) StravaTimeout() time.Duration {
	return time.Duration(c.StravaTimeoutSeconds) * time.Second
}

func (c *Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c *Config) SyncLockTTL() time.Duration {
	return time.Duration(c.SyncLockTTLSeconds) * time.Second
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
