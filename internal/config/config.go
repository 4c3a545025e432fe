package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Defaults applied when nothing else sets a value.
const (
	DefaultDatabaseDriver  = DriverSQLite
	DefaultDatabaseDSN     = "calsync.db"
	DefaultTokenDir        = "tokens"
	DefaultSyncMonthsPast  = 6
	DefaultSyncMonthsAhead = 12
	DefaultSyncSchedule    = "@every 15m"
	DefaultListenAddr      = ":8080"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Config holds the configuration for the calendar sync service.
type Config struct {
	DatabaseDriver string `json:"database_driver,omitempty" yaml:"database_driver,omitempty"` // "postgres" or "sqlite3"
	DatabaseDSN    string `json:"database_dsn,omitempty" yaml:"database_dsn,omitempty"`
	RedisAddr      string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"` // Empty disables the worker and the shared lease
	TokenDir       string `json:"token_dir,omitempty" yaml:"token_dir,omitempty"`   // Empty keeps tokens in the database

	GoogleCredentialsPath string `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	GoogleClientID        string `json:"google_client_id,omitempty" yaml:"google_client_id,omitempty"`
	GoogleClientSecret    string `json:"google_client_secret,omitempty" yaml:"google_client_secret,omitempty"`

	MicrosoftClientID     string `json:"microsoft_client_id,omitempty" yaml:"microsoft_client_id,omitempty"`
	MicrosoftClientSecret string `json:"microsoft_client_secret,omitempty" yaml:"microsoft_client_secret,omitempty"`
	MicrosoftTenant       string `json:"microsoft_tenant,omitempty" yaml:"microsoft_tenant,omitempty"`

	// Sync window configuration
	SyncMonthsPast  int    `json:"sync_months_past,omitempty" yaml:"sync_months_past,omitempty"`   // First-sync window before now (default: 6)
	SyncMonthsAhead int    `json:"sync_months_ahead,omitempty" yaml:"sync_months_ahead,omitempty"` // First-sync window after now (default: 12)
	SyncConcurrency int    `json:"sync_concurrency,omitempty" yaml:"sync_concurrency,omitempty"`   // Calendars synced in parallel per connection
	SyncSchedule    string `json:"sync_schedule,omitempty" yaml:"sync_schedule,omitempty"`         // Cron spec of the periodic sync_all task

	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	JWTSecret  string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Flags are command-line overrides. Zero values leave lower layers alone.
type Flags struct {
	DatabaseDriver        string
	DatabaseDSN           string
	RedisAddr             string
	TokenDir              string
	GoogleCredentialsPath string
	ListenAddr            string
	Verbose               bool
}

// LoadConfigFromFile loads configuration from a JSON or YAML file, chosen
// by extension.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	stringVars := map[string]*string{
		"CALSYNC_DATABASE_DRIVER": &config.DatabaseDriver,
		"CALSYNC_DATABASE_DSN":    &config.DatabaseDSN,
		"CALSYNC_REDIS_ADDR":      &config.RedisAddr,
		"CALSYNC_TOKEN_DIR":       &config.TokenDir,
		"GOOGLE_CREDENTIALS_PATH": &config.GoogleCredentialsPath,
		"GOOGLE_CLIENT_ID":        &config.GoogleClientID,
		"GOOGLE_CLIENT_SECRET":    &config.GoogleClientSecret,
		"MICROSOFT_CLIENT_ID":     &config.MicrosoftClientID,
		"MICROSOFT_CLIENT_SECRET": &config.MicrosoftClientSecret,
		"MICROSOFT_TENANT":        &config.MicrosoftTenant,
		"SYNC_SCHEDULE":           &config.SyncSchedule,
		"CALSYNC_LISTEN_ADDR":     &config.ListenAddr,
		"CALSYNC_JWT_SECRET":      &config.JWTSecret,
	}
	for name, field := range stringVars {
		if value := os.Getenv(name); value != "" {
			*field = value
		}
	}

	intVars := map[string]*int{
		"SYNC_MONTHS_PAST":  &config.SyncMonthsPast,
		"SYNC_MONTHS_AHEAD": &config.SyncMonthsAhead,
		"SYNC_CONCURRENCY":  &config.SyncConcurrency,
	}
	for name, field := range intVars {
		if value := os.Getenv(name); value != "" {
			var err error
			if *field, err = parseInt(value); err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", name, err)
			}
		}
	}

	if verbose := os.Getenv("CALSYNC_VERBOSE"); verbose != "" {
		if verboseBool, err := strconv.ParseBool(verbose); err != nil {
			return nil, fmt.Errorf("invalid CALSYNC_VERBOSE value: %w", err)
		} else {
			config.Verbose = verboseBool
		}
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.DatabaseDriver != "" {
		config.DatabaseDriver = flags.DatabaseDriver
	}
	if flags.DatabaseDSN != "" {
		config.DatabaseDSN = flags.DatabaseDSN
	}
	if flags.RedisAddr != "" {
		config.RedisAddr = flags.RedisAddr
	}
	if flags.TokenDir != "" {
		config.TokenDir = flags.TokenDir
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.ListenAddr != "" {
		config.ListenAddr = flags.ListenAddr
	}
	if flags.Verbose {
		config.Verbose = flags.Verbose
	}

	// Step 4: Apply defaults and validate required fields
	if config.DatabaseDriver == "" {
		config.DatabaseDriver = DefaultDatabaseDriver
	}
	if config.DatabaseDriver != DriverPostgres && config.DatabaseDriver != DriverSQLite {
		return nil, fmt.Errorf("database_driver must be '%s' or '%s', got '%s'", DriverPostgres, DriverSQLite, config.DatabaseDriver)
	}
	if config.DatabaseDSN == "" {
		if config.DatabaseDriver == DriverPostgres {
			return nil, fmt.Errorf("database_dsn must be provided via --database-dsn flag, CALSYNC_DATABASE_DSN environment variable, or config file")
		}
		config.DatabaseDSN = DefaultDatabaseDSN
	}

	// The Cloud Console credentials file fills in whatever is not set explicitly.
	if config.GoogleCredentialsPath != "" && (config.GoogleClientID == "" || config.GoogleClientSecret == "") {
		clientID, clientSecret, err := LoadGoogleCredentials(config.GoogleCredentialsPath)
		if err != nil {
			return nil, err
		}
		if config.GoogleClientID == "" {
			config.GoogleClientID = clientID
		}
		if config.GoogleClientSecret == "" {
			config.GoogleClientSecret = clientSecret
		}
	}

	if !config.GoogleConfigured() && !config.MicrosoftConfigured() {
		return nil, fmt.Errorf("OAuth client credentials must be provided for at least one provider (google_credentials_path or google_client_id, microsoft_client_id)")
	}

	if config.SyncMonthsPast < 0 || config.SyncMonthsAhead < 0 {
		return nil, fmt.Errorf("sync window months must not be negative")
	}
	if config.SyncMonthsPast == 0 {
		config.SyncMonthsPast = DefaultSyncMonthsPast
	}
	if config.SyncMonthsAhead == 0 {
		config.SyncMonthsAhead = DefaultSyncMonthsAhead
	}
	if config.SyncConcurrency <= 0 {
		config.SyncConcurrency = 1
	}
	if config.SyncSchedule == "" {
		config.SyncSchedule = DefaultSyncSchedule
	}
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}

	return &config, nil
}

// GoogleConfigured reports whether a Google OAuth client is available.
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// MicrosoftConfigured reports whether a Microsoft OAuth client is available.
func (c *Config) MicrosoftConfigured() bool {
	return c.MicrosoftClientID != ""
}

// parseInt parses a string to an integer.
func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
