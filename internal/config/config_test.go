package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnvVars = []string{
	"CONFIG_FILE",
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT", "ALLOWED_ORIGINS",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_SQLITE_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"WORKER_ENABLED", "WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL",
	"JWT_SECRET", "JWT_ISSUER", "JWT_EXPIRY", "COOKIE_NAME", "COOKIE_EXPIRY", "COOKIE_SECURE", "BCRYPT_COST",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"LOCK_BACKEND", "LOCK_TTL", "PROJECT_CACHE_TTL", "ORPHAN_SWEEPS",
	"LOG_LEVEL", "LOG_FORMAT",
}

func setEnvVars(vars map[string]string) {
	for k, v := range vars {
		os.Setenv(k, v)
	}
}

func clearEnvVars(vars []string) {
	for _, k := range vars {
		os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnvVars(allEnvVars)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Server.Host)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", config.Server.Port)
	}

	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}

	if config.Database.Driver != DriverPostgres {
		t.Errorf("Expected default driver postgres, got %s", config.Database.Driver)
	}

	if config.Database.Name != "synera" {
		t.Errorf("Expected default DB name 'synera', got %s", config.Database.Name)
	}

	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.Port != "6379" {
		t.Errorf("Expected default Redis port '6379', got %s", config.Redis.Port)
	}

	if config.Auth.CookieName != "token" {
		t.Errorf("Expected default cookie name 'token', got %s", config.Auth.CookieName)
	}

	if config.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Expected default token TTL 24h, got %v", config.Auth.TokenTTL)
	}

	if config.Board.LockBackend != LockBackendMemory {
		t.Errorf("Expected default lock backend memory, got %s", config.Board.LockBackend)
	}

	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	envVars := map[string]string{
		"HOST":               "0.0.0.0",
		"PORT":               "9000",
		"ENVIRONMENT":        "production",
		"DB_PASSWORD":        "secure_password",
		"DB_MAX_OPEN_CONNS":  "50",
		"REDIS_DB":           "1",
		"JWT_SECRET":         "super-secret-key",
		"JWT_EXPIRY":         "2h",
		"COOKIE_EXPIRY":      "3",
		"RATE_LIMIT_ENABLED": "false",
		"LOCK_BACKEND":       "redis",
		"ALLOWED_ORIGINS":    "https://a.example.com, https://b.example.com",
	}

	clearEnvVars(allEnvVars)
	setEnvVars(envVars)
	defer clearEnvVars(allEnvVars)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with custom config, got: %v", err)
	}

	if config.GetServerAddr() != "0.0.0.0:9000" {
		t.Errorf("Expected server addr '0.0.0.0:9000', got %s", config.GetServerAddr())
	}

	if config.Database.MaxOpenConns != 50 {
		t.Errorf("Expected max open conns 50, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.DB != 1 {
		t.Errorf("Expected Redis DB 1, got %d", config.Redis.DB)
	}

	if config.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Expected token TTL 2h, got %v", config.Auth.TokenTTL)
	}

	if config.Auth.CookieMaxAge != 72*time.Hour {
		t.Errorf("Expected cookie max age 72h, got %v", config.Auth.CookieMaxAge)
	}

	if config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled")
	}

	if config.Board.LockBackend != LockBackendRedis {
		t.Errorf("Expected redis lock backend, got %s", config.Board.LockBackend)
	}

	if len(config.Server.AllowedOrigins) != 2 || config.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("Unexpected allowed origins %v", config.Server.AllowedOrigins)
	}
}

func TestLoadConfig_YAMLFileThenEnv(t *testing.T) {
	clearEnvVars(allEnvVars)
	defer clearEnvVars(allEnvVars)

	path := filepath.Join(t.TempDir(), "synera.yaml")
	content := []byte(`
server:
  port: "7000"
database:
  driver: sqlite
  sqlite_path: /tmp/board.db
board:
  lock_ttl: 5s
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	setEnvVars(map[string]string{"CONFIG_FILE": path, "PORT": "7100"})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Server.Port != "7100" {
		t.Errorf("Expected env to override file port, got %s", config.Server.Port)
	}

	if config.Database.Driver != DriverSQLite {
		t.Errorf("Expected sqlite driver from file, got %s", config.Database.Driver)
	}

	if config.GetDatabaseDSN() != "/tmp/board.db" {
		t.Errorf("Expected sqlite DSN to be the file path, got %s", config.GetDatabaseDSN())
	}

	if config.Board.LockTTL != 5*time.Second {
		t.Errorf("Expected lock TTL 5s, got %v", config.Board.LockTTL)
	}

	if config.Server.Host != "localhost" {
		t.Errorf("Expected untouched default host, got %s", config.Server.Host)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnvVars(allEnvVars)
	defer clearEnvVars(allEnvVars)

	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadConfig_ProductionValidation(t *testing.T) {
	clearEnvVars(allEnvVars)
	defer clearEnvVars(allEnvVars)

	setEnvVars(map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "super-secret-key",
	})

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when DB password is missing in production")
	}
}

func TestLoadConfig_ProductionJWTValidation(t *testing.T) {
	clearEnvVars(allEnvVars)
	defer clearEnvVars(allEnvVars)

	setEnvVars(map[string]string{
		"ENVIRONMENT": "production",
		"DB_PASSWORD": "secure_password",
	})

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error when JWT secret is the default in production")
	}
}

func TestLoadConfig_InvalidBackends(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"DB_DRIVER": "mysql"}},
		{name: "unknown lock backend", env: map[string]string{"LOCK_BACKEND": "etcd"}},
		{name: "redis lock without redis", env: map[string]string{"LOCK_BACKEND": "redis", "REDIS_ENABLED": "false"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(allEnvVars)
			defer clearEnvVars(allEnvVars)
			setEnvVars(tt.env)

			if _, err := LoadConfig(); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := defaultConfig()
	config.Database.Password = "secret"

	expected := "host=localhost port=5432 user=postgres password=secret dbname=synera sslmode=disable"
	if dsn := config.GetDatabaseDSN(); dsn != expected {
		t.Errorf("Expected DSN %q, got %q", expected, dsn)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_INT", "not-a-number")
	os.Setenv("TEST_BOOL", "true")
	os.Setenv("TEST_DURATION", "90s")
	defer clearEnvVars([]string{"TEST_INT", "TEST_BOOL", "TEST_DURATION"})

	if v := getEnvAsInt("TEST_INT", 7); v != 7 {
		t.Errorf("Expected fallback 7 for invalid int, got %d", v)
	}

	if v := getEnvAsBool("TEST_BOOL", false); !v {
		t.Error("Expected true")
	}

	if v := getEnvAsDuration("TEST_DURATION", time.Second); v != 90*time.Second {
		t.Errorf("Expected 90s, got %v", v)
	}

	if v := getEnv("TEST_UNSET_VALUE", "fallback"); v != "fallback" {
		t.Errorf("Expected fallback, got %s", v)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	clearEnvVars(allEnvVars)
	for i := 0; i < b.N; i++ {
		_, _ = LoadConfig()
	}
}
