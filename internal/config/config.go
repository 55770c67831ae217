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
	SQLiteDatabase   = "sqlite"
	PostgresDatabase = "postgres"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName          string   `mapstructure:"appname"`
	AppPort          string   `mapstructure:"appport"`
	Environment      string   `mapstructure:"environment"`
	LogLevel         LogLevel `mapstructure:"loglevel"`
	CORSAllowOrigins string   `mapstructure:"corsalloworigins"`

	// File paths
	DatabasePath    string `mapstructure:"storagepath"`
	DatabaseName    string `mapstructure:"-"` // Derived from other settings
	PublicDirectory string `mapstructure:"publicdir"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseURL          string `mapstructure:"databaseurl"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// DisplayForce API
	DisplayForceBaseURL           string  `mapstructure:"displayforcebaseurl"`
	DisplayForceToken             string  `mapstructure:"displayforcetoken"`
	DisplayForceTimeoutSeconds    int     `mapstructure:"displayforcetimeoutseconds"`
	DisplayForceRequestsPerSecond float64 `mapstructure:"displayforcerequestspersecond"`

	// Background jobs
	JobsEnabled         bool `mapstructure:"jobsenabled"`
	BackfillDays        int  `mapstructure:"backfilldays"`
	RecordRetentionDays int  `mapstructure:"recordretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "visitorinsights")
		v.SetDefault("appport", "3001")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("corsalloworigins", "*")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "dist")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("databaseurl", "")
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("displayforcebaseurl", "https://api.displayforce.ai/public/v1")
		v.SetDefault("displayforcetoken", "")
		v.SetDefault("displayforcetimeoutseconds", 30)
		v.SetDefault("displayforcerequestspersecond", 5.0)
		v.SetDefault("jobsenabled", true)
		v.SetDefault("backfilldays", 7)
		v.SetDefault("recordretentiondays", 0)

		// The second name of each pair is the variable the original Node
		// deployment read, kept so existing .env files keep working.
		v.BindEnv("appname", "INSIGHTS_APP_NAME")
		v.BindEnv("appport", "INSIGHTS_APP_PORT", "PORT")
		v.BindEnv("environment", "INSIGHTS_ENV")
		v.BindEnv("loglevel", "INSIGHTS_LOG_LEVEL")
		v.BindEnv("corsalloworigins", "INSIGHTS_CORS_ALLOW_ORIGINS")
		v.BindEnv("storagepath", "INSIGHTS_STORAGE_PATH")
		v.BindEnv("publicdir", "INSIGHTS_PUBLIC_DIR")
		v.BindEnv("logsdir", "INSIGHTS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "INSIGHTS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "INSIGHTS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "INSIGHTS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "INSIGHTS_DB_TYPE")
		v.BindEnv("databaseurl", "INSIGHTS_DATABASE_URL", "DATABASE_URL")
		v.BindEnv("dbmaxopenconns", "INSIGHTS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "INSIGHTS_DB_MAX_IDLE_CONNS")
		v.BindEnv("displayforcebaseurl", "INSIGHTS_DISPLAYFORCE_BASE_URL")
		v.BindEnv("displayforcetoken", "INSIGHTS_DISPLAYFORCE_TOKEN", "DISPLAYFORCE_TOKEN")
		v.BindEnv("displayforcetimeoutseconds", "INSIGHTS_DISPLAYFORCE_TIMEOUT_SECONDS")
		v.BindEnv("displayforcerequestspersecond", "INSIGHTS_DISPLAYFORCE_REQUESTS_PER_SECOND")
		v.BindEnv("jobsenabled", "INSIGHTS_JOBS_ENABLED")
		v.BindEnv("backfilldays", "INSIGHTS_BACKFILL_DAYS")
		v.BindEnv("recordretentiondays", "INSIGHTS_RECORD_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
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
		SQLiteDatabase:   true,
		PostgresDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}
	if c.DatabaseType == PostgresDatabase && c.DatabaseURL == "" {
		return fmt.Errorf("database type %s requires INSIGHTS_DATABASE_URL", PostgresDatabase)
	}

	if c.BackfillDays < 0 {
		return fmt.Errorf("invalid backfill days: %d", c.BackfillDays)
	}
	if c.RecordRetentionDays < 0 {
		return fmt.Errorf("invalid record retention days: %d", c.RecordRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the sqlite file path based on environment
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

// GetPort returns the HTTP server port.
func (c *Config) GetPort() string {
	return c.AppPort
}

// DisplayForceTimeout returns the per-request timeout for the DisplayForce API.
func (c *Config) DisplayForceTimeout() time.Duration {
	return time.Duration(c.DisplayForceTimeoutSeconds) * time.Second
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (shared in-memory databases need a single writer)
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

// GetLogLevel returns the log level as a string.
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory.
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB.
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups.
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files.
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}

// GetAppName returns the application name.
func (c *Config) GetAppName() string {
	return c.AppName
}
