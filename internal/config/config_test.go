package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CALSYNC_DATABASE_DRIVER", "CALSYNC_DATABASE_DSN", "CALSYNC_REDIS_ADDR", "CALSYNC_TOKEN_DIR",
		"GOOGLE_CREDENTIALS_PATH", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET", "MICROSOFT_TENANT",
		"SYNC_MONTHS_PAST", "SYNC_MONTHS_AHEAD", "SYNC_CONCURRENCY", "SYNC_SCHEDULE",
		"CALSYNC_LISTEN_ADDR", "CALSYNC_JWT_SECRET", "CALSYNC_VERBOSE",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLIENT_ID", "env-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-client-secret")
	t.Setenv("CALSYNC_REDIS_ADDR", "localhost:6379")
	t.Setenv("SYNC_MONTHS_PAST", "3")

	// Test loading from environment variables (empty flags and no config file)
	config, err := LoadConfig("", Flags{})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.GoogleClientID != "env-client-id" {
		t.Errorf("Expected GoogleClientID to be 'env-client-id', got '%s'", config.GoogleClientID)
	}
	if config.RedisAddr != "localhost:6379" {
		t.Errorf("Expected RedisAddr to be 'localhost:6379', got '%s'", config.RedisAddr)
	}
	if config.SyncMonthsPast != 3 {
		t.Errorf("Expected SyncMonthsPast to be 3, got %d", config.SyncMonthsPast)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MICROSOFT_CLIENT_ID", "ms-client")

	config, err := LoadConfig("", Flags{})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.DatabaseDriver != DriverSQLite || config.DatabaseDSN != DefaultDatabaseDSN {
		t.Errorf("Expected default sqlite database, got %s %s", config.DatabaseDriver, config.DatabaseDSN)
	}
	if config.SyncMonthsPast != 6 || config.SyncMonthsAhead != 12 {
		t.Errorf("Expected a 6/12 month window, got %d/%d", config.SyncMonthsPast, config.SyncMonthsAhead)
	}
	if config.SyncConcurrency != 1 {
		t.Errorf("Expected SyncConcurrency to default to 1, got %d", config.SyncConcurrency)
	}
	if config.SyncSchedule != DefaultSyncSchedule {
		t.Errorf("Expected SyncSchedule to default to '%s', got '%s'", DefaultSyncSchedule, config.SyncSchedule)
	}
	if config.ListenAddr != DefaultListenAddr {
		t.Errorf("Expected ListenAddr to default to '%s', got '%s'", DefaultListenAddr, config.ListenAddr)
	}
	if config.GoogleConfigured() {
		t.Error("Google should not be configured")
	}
}

func TestLoadConfig_CommandLineFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("MICROSOFT_CLIENT_ID", "ms-client")
	t.Setenv("CALSYNC_DATABASE_DSN", "/env/calsync.db")
	t.Setenv("CALSYNC_TOKEN_DIR", "/env/tokens")

	// Provide flags that should override env vars
	config, err := LoadConfig("", Flags{DatabaseDSN: "/flag/calsync.db", TokenDir: "/flag/tokens", Verbose: true})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.DatabaseDSN != "/flag/calsync.db" {
		t.Errorf("Expected DatabaseDSN to be '/flag/calsync.db', got '%s'", config.DatabaseDSN)
	}
	if config.TokenDir != "/flag/tokens" {
		t.Errorf("Expected TokenDir to be '/flag/tokens', got '%s'", config.TokenDir)
	}
	if !config.Verbose {
		t.Error("Expected Verbose to be set by flag")
	}
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	clearEnv(t)
	configPath := writeFile(t, "config.json", `{
		"database_driver": "postgres",
		"database_dsn": "postgres://lab@localhost/calsync",
		"microsoft_client_id": "file-ms-client",
		"microsoft_tenant": "lab.example.org",
		"sync_months_ahead": 3
	}`)

	config, err := LoadConfig(configPath, Flags{})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.DatabaseDriver != DriverPostgres {
		t.Errorf("Expected DatabaseDriver to be 'postgres', got '%s'", config.DatabaseDriver)
	}
	if config.MicrosoftTenant != "lab.example.org" {
		t.Errorf("Expected MicrosoftTenant to be 'lab.example.org', got '%s'", config.MicrosoftTenant)
	}
	if config.SyncMonthsAhead != 3 {
		t.Errorf("Expected SyncMonthsAhead to be 3, got %d", config.SyncMonthsAhead)
	}
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	clearEnv(t)
	configPath := writeFile(t, "config.yaml", `
microsoft_client_id: yaml-ms-client
redis_addr: redis:6379
sync_concurrency: 4
sync_schedule: "*/5 * * * *"
`)

	config, err := LoadConfig(configPath, Flags{})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.MicrosoftClientID != "yaml-ms-client" {
		t.Errorf("Expected MicrosoftClientID from YAML, got '%s'", config.MicrosoftClientID)
	}
	if config.SyncConcurrency != 4 {
		t.Errorf("Expected SyncConcurrency to be 4, got %d", config.SyncConcurrency)
	}
	if config.SyncSchedule != "*/5 * * * *" {
		t.Errorf("Expected SyncSchedule from YAML, got '%s'", config.SyncSchedule)
	}
}

func TestLoadConfig_EnvVarsOverrideConfigFile(t *testing.T) {
	clearEnv(t)
	configPath := writeFile(t, "config.json", `{
		"microsoft_client_id": "file-ms-client",
		"redis_addr": "file:6379"
	}`)

	// Set environment variable that should override config file
	t.Setenv("CALSYNC_REDIS_ADDR", "env:6379")

	config, err := LoadConfig(configPath, Flags{})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	// This should come from config file
	if config.MicrosoftClientID != "file-ms-client" {
		t.Errorf("Expected MicrosoftClientID from config file, got '%s'", config.MicrosoftClientID)
	}

	// This should be overridden by environment variable
	if config.RedisAddr != "env:6379" {
		t.Errorf("Expected RedisAddr to be overridden by env var 'env:6379', got '%s'", config.RedisAddr)
	}
}

func TestLoadConfig_GoogleCredentialsFile(t *testing.T) {
	clearEnv(t)
	credsPath := writeFile(t, "credentials.json", `{"installed":{"client_id":"file-id","client_secret":"file-secret"}}`)

	config, err := LoadConfig("", Flags{GoogleCredentialsPath: credsPath})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.GoogleClientID != "file-id" || config.GoogleClientSecret != "file-secret" {
		t.Errorf("Expected credentials from file, got '%s' '%s'", config.GoogleClientID, config.GoogleClientSecret)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	clearEnv(t)

	// Try to load config without any provider credentials
	config, err := LoadConfig("", Flags{})
	if err == nil {
		t.Error("LoadConfig() should have returned an error when no provider is configured")
	}
	if config != nil {
		t.Error("LoadConfig() should have returned nil config when there's an error")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad driver", map[string]string{"CALSYNC_DATABASE_DRIVER": "mysql"}},
		{"postgres without dsn", map[string]string{"CALSYNC_DATABASE_DRIVER": "postgres"}},
		{"bad months", map[string]string{"SYNC_MONTHS_PAST": "six"}},
		{"negative months", map[string]string{"SYNC_MONTHS_AHEAD": "-1"}},
		{"bad verbose", map[string]string{"CALSYNC_VERBOSE": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MICROSOFT_CLIENT_ID", "ms-client")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig("", Flags{}); err == nil {
				t.Error("LoadConfig() should have returned an error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv only fills variables that are absent, not merely empty.
	os.Unsetenv("MICROSOFT_CLIENT_ID")
	t.Setenv("CALSYNC_TOKEN_DIR", "/already/set")
	path := writeFile(t, ".env", "MICROSOFT_CLIENT_ID=dotenv-client\nCALSYNC_TOKEN_DIR=/from/dotenv\n")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() returned an error: %v", err)
	}
	if got := os.Getenv("MICROSOFT_CLIENT_ID"); got != "dotenv-client" {
		t.Errorf("Expected MICROSOFT_CLIENT_ID from .env, got '%s'", got)
	}
	if got := os.Getenv("CALSYNC_TOKEN_DIR"); got != "/already/set" {
		t.Errorf("Expected existing CALSYNC_TOKEN_DIR to win, got '%s'", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadDotEnv() should ignore a missing file, got %v", err)
	}
}

func TestLoadGoogleCredentials_Installed(t *testing.T) {
	credsPath := writeFile(t, "credentials.json", `{
		"installed": {
			"client_id": "test-client-id",
			"client_secret": "test-client-secret"
		}
	}`)

	clientID, clientSecret, err := LoadGoogleCredentials(credsPath)
	if err != nil {
		t.Fatalf("LoadGoogleCredentials() returned an error: %v", err)
	}

	if clientID != "test-client-id" {
		t.Errorf("Expected clientID to be 'test-client-id', got '%s'", clientID)
	}
	if clientSecret != "test-client-secret" {
		t.Errorf("Expected clientSecret to be 'test-client-secret', got '%s'", clientSecret)
	}
}

func TestLoadGoogleCredentials_Web(t *testing.T) {
	credsPath := writeFile(t, "credentials.json", `{
		"web": {
			"client_id": "web-client-id",
			"client_secret": "web-client-secret"
		}
	}`)

	clientID, clientSecret, err := LoadGoogleCredentials(credsPath)
	if err != nil {
		t.Fatalf("LoadGoogleCredentials() returned an error: %v", err)
	}

	if clientID != "web-client-id" {
		t.Errorf("Expected clientID to be 'web-client-id', got '%s'", clientID)
	}
	if clientSecret != "web-client-secret" {
		t.Errorf("Expected clientSecret to be 'web-client-secret', got '%s'", clientSecret)
	}
}

func TestLoadGoogleCredentials_Empty(t *testing.T) {
	credsPath := writeFile(t, "credentials.json", `{}`)

	if _, _, err := LoadGoogleCredentials(credsPath); err == nil {
		t.Error("LoadGoogleCredentials() should fail without a client_id")
	}
}
