package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/marketid/internal/factory"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Factory.StorageType)
	assert.Nil(t, cfg.Factory.RedisConfig)
	assert.Nil(t, cfg.Factory.PostgresConfig)
	assert.Equal(t, 24*time.Hour, cfg.Factory.BackupConfig.TTL)
	assert.True(t, cfg.Factory.IdentityConfig.ReissueOnRoleDrift)
	assert.Equal(t, 2*time.Second, cfg.Factory.IdentityConfig.Cooldown)
	assert.Equal(t, "/login", cfg.Guard.SignInPath)
	assert.Equal(t, 10*time.Minute, cfg.CleanupInterval)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(envFrom(map[string]string{
		"LOG_LEVEL":             "debug",
		"PORT":                  "9090",
		"STORAGE_TYPE":          "Redis",
		"REDIS_URL":             "redis://cache:6379/1",
		"REDIS_KEY_PREFIX":      "shop",
		"BACKUP_TYPE":           "file",
		"BACKUP_DIR":            "/var/lib/marketid",
		"BACKUP_TTL":            "1h",
		"JWT_SECRET":            "s3cret",
		"TOKEN_TTL":             "5m",
		"SESSION_COOLDOWN":      "10s",
		"SIGNAL_DEBOUNCE":       "0s",
		"REISSUE_ON_ROLE_DRIFT": "false",
		"CLIENT_IDLE_TTL":       "2h",
		"COOKIE_SECURE":         "true",
		"ADMIN_EMAIL":           "admin@example.com",
		"ADMIN_PASSWORD":        "adminpass1",
	}))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, factory.StorageTypeRedis, cfg.Factory.StorageType)
	require.NotNil(t, cfg.Factory.RedisConfig)
	assert.Equal(t, "redis://cache:6379/1", cfg.Factory.RedisConfig.URL)
	assert.Equal(t, "shop", cfg.Factory.RedisConfig.KeyPrefix)
	assert.Equal(t, factory.BackupTypeFile, cfg.Factory.BackupType)
	assert.Equal(t, "/var/lib/marketid", cfg.Factory.BackupDir)
	assert.Equal(t, time.Hour, cfg.Factory.BackupConfig.TTL)
	assert.Equal(t, "s3cret", cfg.Factory.AuthConfig.Secret)
	assert.Equal(t, 5*time.Minute, cfg.Factory.AuthConfig.TokenTTL)
	assert.Equal(t, 10*time.Second, cfg.Factory.IdentityConfig.Cooldown)
	assert.Zero(t, cfg.Factory.IdentityConfig.Debounce)
	assert.False(t, cfg.Factory.IdentityConfig.ReissueOnRoleDrift)
	assert.Equal(t, 2*time.Hour, cfg.Factory.SessionsConfig.IdleTTL)
	assert.Equal(t, 2*time.Hour, cfg.Client.MaxAge)
	assert.True(t, cfg.Client.Secure)
	assert.Equal(t, "admin@example.com", cfg.AdminEmail)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad port", map[string]string{"PORT": "eighty"}, "PORT"},
		{"bad duration", map[string]string{"SESSION_COOLDOWN": "soon"}, "SESSION_COOLDOWN"},
		{"bad bool", map[string]string{"COOKIE_SECURE": "maybe"}, "COOKIE_SECURE"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"redis without url", map[string]string{"STORAGE_TYPE": "redis"}, "REDIS_URL"},
		{"redis backup without url", map[string]string{"BACKUP_TYPE": "redis"}, "REDIS_URL"},
		{"postgres without dsn", map[string]string{"STORAGE_TYPE": "postgres"}, "DATABASE_URL"},
		{"zero cleanup interval", map[string]string{"CLEANUP_INTERVAL": "0s"}, "CLEANUP_INTERVAL"},
		{"admin email alone", map[string]string{"ADMIN_EMAIL": "admin@example.com"}, "ADMIN_PASSWORD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(envFrom(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MARKETID_DOTENV_TEST=from-file\n"), 0o600))
	t.Setenv("MARKETID_DOTENV_TEST", "")
	require.NoError(t, os.Unsetenv("MARKETID_DOTENV_TEST"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("MARKETID_DOTENV_TEST"))
}
