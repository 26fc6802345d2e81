package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/marketid/internal/api"
	"github.com/mcoot/marketid/internal/backup"
	"github.com/mcoot/marketid/internal/factory"
	"github.com/mcoot/marketid/internal/guard"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/services/sessions"
	"github.com/mcoot/marketid/internal/storage/postgres"
	redisstorage "github.com/mcoot/marketid/internal/storage/redis"
	webmw "github.com/mcoot/marketid/internal/web/middleware"
)

// Config is the server configuration
type Config struct {
	LogLevel      slog.Level
	Server        api.ServerConfig
	Factory       factory.Config
	Guard         guard.Config
	Client        webmw.ClientConfig
	StaticDir     string
	AdminEmail    string
	AdminPassword string
	// CleanupInterval is how often idle clients and expired token
	// bookkeeping are swept
	CleanupInterval time.Duration
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from environment variables read through getenv
func Load(getenv func(string) string) (*Config, error) {
	e := &env{getenv: getenv}

	cfg := &Config{
		LogLevel:        slog.LevelInfo,
		Server:          api.DefaultServerConfig(),
		Guard:           guard.DefaultConfig(),
		Client:          webmw.DefaultClientConfig(),
		StaticDir:       getenv("STATIC_DIR"),
		AdminEmail:      getenv("ADMIN_EMAIL"),
		AdminPassword:   getenv("ADMIN_PASSWORD"),
		CleanupInterval: 10 * time.Minute,
	}

	if level := getenv("LOG_LEVEL"); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	cfg.Server.Port = e.getInt("PORT", cfg.Server.Port)

	// Storage and backup
	fc := factory.Config{
		StorageType: strings.ToLower(getenv("STORAGE_TYPE")),
		BackupType:  strings.ToLower(getenv("BACKUP_TYPE")),
		BackupDir:   getenv("BACKUP_DIR"),
	}
	if url := getenv("REDIS_URL"); url != "" {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = url
		if prefix := getenv("REDIS_KEY_PREFIX"); prefix != "" {
			redisCfg.KeyPrefix = prefix
		}
		fc.RedisConfig = &redisCfg
	}
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = dsn
		fc.PostgresConfig = &pgCfg
	}
	if (fc.StorageType == factory.StorageTypeRedis || fc.BackupType == factory.BackupTypeRedis) && fc.RedisConfig == nil {
		return nil, errors.New("REDIS_URL required when STORAGE_TYPE or BACKUP_TYPE is redis")
	}
	if fc.StorageType == factory.StorageTypePostgres && fc.PostgresConfig == nil {
		return nil, errors.New("DATABASE_URL required when STORAGE_TYPE is postgres")
	}

	fc.BackupConfig = backup.DefaultConfig()
	fc.BackupConfig.TTL = e.getDuration("BACKUP_TTL", fc.BackupConfig.TTL)

	// Authentication
	fc.AuthConfig = authn.DefaultConfig()
	fc.AuthConfig.Secret = getenv("JWT_SECRET")
	fc.AuthConfig.TokenTTL = e.getDuration("TOKEN_TTL", fc.AuthConfig.TokenTTL)

	// Session engine timings
	fc.IdentityConfig = identity.DefaultConfig()
	fc.IdentityConfig.ProfileTimeout = e.getDuration("PROFILE_TIMEOUT", fc.IdentityConfig.ProfileTimeout)
	fc.IdentityConfig.Cooldown = e.getDuration("SESSION_COOLDOWN", fc.IdentityConfig.Cooldown)
	fc.IdentityConfig.Debounce = e.getDuration("SIGNAL_DEBOUNCE", fc.IdentityConfig.Debounce)
	fc.IdentityConfig.ReissueOnRoleDrift = e.getBool("REISSUE_ON_ROLE_DRIFT", fc.IdentityConfig.ReissueOnRoleDrift)

	fc.SessionsConfig = sessions.DefaultConfig()
	fc.SessionsConfig.IdleTTL = e.getDuration("CLIENT_IDLE_TTL", fc.SessionsConfig.IdleTTL)
	cfg.Factory = fc

	cfg.Guard.SettleTimeout = e.getDuration("SETTLE_TIMEOUT", cfg.Guard.SettleTimeout)
	cfg.Client.MaxAge = fc.SessionsConfig.IdleTTL
	cfg.Client.Secure = e.getBool("COOKIE_SECURE", cfg.Client.Secure)
	cfg.CleanupInterval = e.getDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)

	if cfg.CleanupInterval <= 0 {
		return nil, errors.New("CLEANUP_INTERVAL must be positive")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

// env parses typed variables, keeping the first error
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) getInt(key string, def int) int {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return v
}

func (e *env) getDuration(key string, def time.Duration) time.Duration {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return v
}

func (e *env) getBool(key string, def bool) bool {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return v
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}
