// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                    string   `mapstructure:"appname"`
	AppPort                    string   `mapstructure:"appport"`
	Environment                string   `mapstructure:"environment"`
	LogLevel                   LogLevel `mapstructure:"loglevel"`
	PrivateKey                 string   `mapstructure:"privatekey"`
	LoginSessionTimeoutSeconds int      `mapstructure:"loginsessiontimeoutseconds"`
	AdminEmail                 string   `mapstructure:"adminemail"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Counter store. Empty RedisURL selects the SQLite-backed store.
	RedisURL string `mapstructure:"redisurl"`

	// Click throttling
	RateLimitMax           int `mapstructure:"ratelimitmax"`
	RateLimitWindowSeconds int `mapstructure:"ratelimitwindowseconds"`

	// Anti-forgery token lifetime for the tracking endpoints
	TokenLifetimeSeconds int `mapstructure:"tokenlifetimeseconds"`

	// A non-empty license key unlocks the Pro CTA types and layouts
	LicenseKey string `mapstructure:"licensekey"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings
	EventsRetentionDays int `mapstructure:"eventsretentiondays"`

	// Optional GeoLite2 country database used to tag events with a country
	GeoDBPath string `mapstructure:"geodbpath"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "ctabeacon")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("loginsessiontimeoutseconds", 604800) // 1 week
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "web/dist/assets")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("redisurl", "")
		v.SetDefault("ratelimitmax", 10)
		v.SetDefault("ratelimitwindowseconds", 60)
		v.SetDefault("tokenlifetimeseconds", 86400)
		v.SetDefault("jobintervalseconds", 3600)
		v.SetDefault("eventsretentiondays", 180)
		v.SetDefault("geodbpath", "")

		v.BindEnv("appname", "CTABEACON_APP_NAME")
		v.BindEnv("appport", "CTABEACON_APP_PORT")
		v.BindEnv("environment", "CTABEACON_ENV")
		v.BindEnv("loglevel", "CTABEACON_LOG_LEVEL")
		v.BindEnv("privatekey", "CTABEACON_PRIVATE_KEY")
		v.BindEnv("loginsessiontimeoutseconds", "CTABEACON_LOGIN_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("adminemail", "CTABEACON_ADMIN_EMAIL")
		v.BindEnv("storagepath", "CTABEACON_STORAGE_PATH")
		v.BindEnv("publicdir", "CTABEACON_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "CTABEACON_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "CTABEACON_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "CTABEACON_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "CTABEACON_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "CTABEACON_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "CTABEACON_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "CTABEACON_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "CTABEACON_DB_MAX_IDLE_CONNS")
		v.BindEnv("redisurl", "CTABEACON_REDIS_URL")
		v.BindEnv("ratelimitmax", "CTABEACON_RATE_LIMIT_MAX")
		v.BindEnv("ratelimitwindowseconds", "CTABEACON_RATE_LIMIT_WINDOW_SECONDS")
		v.BindEnv("tokenlifetimeseconds", "CTABEACON_TOKEN_LIFETIME_SECONDS")
		v.BindEnv("licensekey", "CTABEACON_LICENSE_KEY")
		v.BindEnv("jobintervalseconds", "CTABEACON_JOB_INTERVAL_SECONDS")
		v.BindEnv("eventsretentiondays", "CTABEACON_EVENTS_RETENTION_DAYS")
		v.BindEnv("geodbpath", "CTABEACON_GEO_DB_PATH")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique CTABEACON_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit max must be positive: %d", c.RateLimitMax)
	}
	if c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("rate limit window must be positive: %d", c.RateLimitWindowSeconds)
	}
	if c.TokenLifetimeSeconds < 2 {
		return fmt.Errorf("token lifetime too short: %d", c.TokenLifetimeSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// RateLimitWindow returns the fixed click-throttling window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// TokenLifetime returns how long an issued tracking token stays valid.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeSeconds) * time.Second
}

// ProEnabled reports whether a license key was configured.
func (c *Config) ProEnabled() bool {
	return c.LicenseKey != ""
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetLoginSessionTimeout returns the operator login session timeout in seconds.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for test stability)
// - Development/Production: 10
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
