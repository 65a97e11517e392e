package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Workflow.OverviewCacheTTL.Std())
	assert.Equal(t, "@every 15m", cfg.Workflow.ReconcileSchedule)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 9000, "read_timeout": "5s"},
		"store": {"backend": "postgres"},
		"security": {"jwt_secret": "file-secret-0123456789"},
		"workflow": {"overview_cache_ttl": 2000000000, "max_commit_retries": 3}
	}`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("STORE_BACKEND", "MONGO")
	t.Setenv("MONGO_DB_NAME", "registry_test")
	t.Setenv("OVERVIEW_CACHE_TTL", "750ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, BackendMongo, cfg.Store.Backend)
	assert.Equal(t, "registry_test", cfg.Mongo.DBName)
	assert.Equal(t, "file-secret-0123456789", cfg.Security.JWTSecret)
	assert.Equal(t, 750*time.Millisecond, cfg.Workflow.OverviewCacheTTL.Std())
	assert.Equal(t, 3, cfg.Workflow.MaxCommitRetries)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"server": {"read_timeout": "soon"}}`))
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "http")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")

	cfg.Security.JWTSecret = "0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.Store.Backend = "redis"
	cfg.Server.Port = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
	assert.Contains(t, err.Error(), "out of range")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestGetDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, DBName: "reg", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/reg?sslmode=disable", db.GetDatabaseURL())
}
