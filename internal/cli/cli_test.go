package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TNEM22/synera-app-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "synera.db")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", path)
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("BCRYPT_COST", "4")
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "create-admin"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestMigrateAndCreateAdmin(t *testing.T) {
	sqliteEnv(t)

	_, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)

	out, err := run(t, "create-admin", "--email", "Root@Example.com", "--name", "Root", "--password", "admin-password")
	require.NoError(t, err)
	assert.Contains(t, out, "Created admin root@example.com")

	_, err = run(t, "create-admin", "--email", "root@example.com", "--password", "admin-password")
	assert.Error(t, err)
}

func TestConfigFromEnvironment(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	_, err := run(t, "migrate", "--log-level", "warn")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Redis.Enabled)
}

func TestProductionRequiresSecrets(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestNewLogger(t *testing.T) {
	c := config.Default()
	var buf bytes.Buffer

	NewLogger(c, &buf).Info("hello", "k", "v")
	assert.True(t, strings.Contains(buf.String(), "msg=hello"))

	buf.Reset()
	c.Server.Environment = "production"
	NewLogger(c, &buf).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	c.Log.Level = "error"
	NewLogger(c, &buf).Warn("quiet")
	assert.Empty(t, buf.String())
}
