package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/marketid/internal/backup"
	"github.com/mcoot/marketid/internal/dependencies/clock"
	"github.com/mcoot/marketid/internal/dependencies/random"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/services/sessions"
	"github.com/mcoot/marketid/internal/storage"
	"github.com/mcoot/marketid/internal/storage/memory"
	"github.com/mcoot/marketid/internal/storage/postgres"
	redisstorage "github.com/mcoot/marketid/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// Backup type constants
const (
	BackupTypeMemory = "memory"
	BackupTypeRedis  = "redis"
	BackupTypeFile   = "file"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage
	Backup  *backup.Backup

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Services
	AuthService *authn.Service
	Registry    *sessions.Registry

	IdentityConfig identity.Config

	logger  *slog.Logger
	closers []func()
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the record storage ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required for redis storage or backup)
	RedisConfig *redisstorage.Config
	// PostgresConfig holds Postgres settings (required if StorageType is "postgres")
	PostgresConfig *postgres.Config
	// BackupType selects where identity backups live ("memory", "redis" or "file")
	// If empty, defaults to "memory"
	BackupType string
	// BackupDir is the directory for file backups
	BackupDir string
	// BackupConfig is optional; zero value means backup.DefaultConfig()
	BackupConfig backup.Config
	// AuthConfig is optional; zero TokenTTL means authn.DefaultConfig() with Secret kept
	AuthConfig authn.Config
	// IdentityConfig is optional; zero ProfileTimeout means identity.DefaultConfig()
	IdentityConfig identity.Config
	// SessionsConfig is optional; zero value means sessions.DefaultConfig()
	SessionsConfig sessions.Config
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var closers []func()
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	var redisClient *goredis.Client
	redisConn := func() (*goredis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required for redis storage or backup")
		}
		client, err := redisstorage.Connect(*cfg.RedisConfig)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisClient = client
		closers = append(closers, func() { _ = client.Close() })
		return client, nil
	}

	// Create storage based on type
	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		client, err := redisConn()
		if err != nil {
			return fail(err)
		}
		store = redisstorage.NewWithClient(client, *cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return fail(errors.New("PostgresConfig required when StorageType is postgres"))
		}
		pgStore, err := postgres.New(ctx, *cfg.PostgresConfig)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = pgStore.Close() })
		store = pgStore
	default:
		return fail(errors.New("invalid StorageType: must be 'memory', 'redis' or 'postgres'"))
	}

	clk := clock.New()
	rnd := random.New()

	var kv backup.KV
	backupType := cfg.BackupType
	if backupType == "" {
		backupType = BackupTypeMemory
	}

	switch backupType {
	case BackupTypeMemory:
		kv = backup.NewMemoryKV(clk)
	case BackupTypeRedis:
		client, err := redisConn()
		if err != nil {
			return fail(err)
		}
		kv = backup.NewRedisKV(client, cfg.RedisConfig.KeyPrefix)
	case BackupTypeFile:
		if cfg.BackupDir == "" {
			return fail(errors.New("BackupDir required when BackupType is file"))
		}
		fileKV, err := backup.NewFileKV(cfg.BackupDir)
		if err != nil {
			return fail(err)
		}
		kv = fileKV
	default:
		return fail(errors.New("invalid BackupType: must be 'memory', 'redis' or 'file'"))
	}

	app := newWithDependencies(store, kv, clk, rnd, cfg, logger)
	app.closers = append(closers, app.closers...)
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, kv backup.KV, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *App {
	authCfg := cfg.AuthConfig
	if authCfg.TokenTTL == 0 {
		secret := authCfg.Secret
		authCfg = authn.DefaultConfig()
		authCfg.Secret = secret
	}
	backupCfg := cfg.BackupConfig
	if backupCfg.TTL == 0 {
		backupCfg = backup.DefaultConfig()
	}
	identityCfg := cfg.IdentityConfig
	if identityCfg.ProfileTimeout == 0 {
		identityCfg = identity.DefaultConfig()
	}

	authService := authn.New(store, clk, rnd, authCfg, logger)

	app := &App{
		Storage:        store,
		Backup:         backup.New(kv, clk, backupCfg, logger),
		Clock:          clk,
		Random:         rnd,
		AuthService:    authService,
		IdentityConfig: identityCfg,
		logger:         logger,
	}
	app.Registry = sessions.NewRegistry(app.NewEngine, clk, rnd, cfg.SessionsConfig, logger)
	app.closers = []func(){authService.Close}
	return app
}

// NewEngine builds the identity engine for one client
func (a *App) NewEngine(clientID string) *identity.Engine {
	return identity.NewEngine(identity.Deps{
		Backend:  authn.NewClient(a.AuthService, a.logger),
		Profiles: a.Storage,
		Stores:   a.Storage,
		Records:  a.Storage,
		Backup:   a.Backup.ForClient(clientID),
		Clock:    a.Clock,
		Logger:   a.logger,
	}, a.IdentityConfig)
}

// EnsureAdmin creates the admin account if it does not exist and makes sure
// its profile carries the admin role
func (a *App) EnsureAdmin(ctx context.Context, email, password string) (model.PrincipalID, error) {
	account, err := a.Storage.GetAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		principal, err := a.AuthService.SignUp(ctx, email, password, map[string]any{
			model.MetadataRole: string(model.RoleAdmin),
		})
		if err != nil {
			return "", fmt.Errorf("create admin: %w", err)
		}
		now := a.Clock.Now()
		if err := a.Storage.SaveProfile(ctx, &model.Profile{
			ID:        principal.ID,
			Name:      principal.EmailLocalPart(),
			Role:      model.RoleAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return "", fmt.Errorf("create admin profile: %w", err)
		}
		a.logger.Info("admin account created", slog.String("user_id", string(principal.ID)))
		return principal.ID, nil
	case err != nil:
		return "", err
	}

	profile, err := a.Storage.GetProfile(ctx, account.PrincipalID)
	if errors.Is(err, model.ErrProfileNotFound) {
		now := a.Clock.Now()
		err = a.Storage.SaveProfile(ctx, &model.Profile{
			ID:        account.PrincipalID,
			Name:      account.Principal().EmailLocalPart(),
			Role:      model.RoleAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return account.PrincipalID, err
	}
	if err != nil {
		return "", err
	}
	if profile.Role != model.RoleAdmin {
		if _, err := a.AuthService.SetRole(ctx, account.PrincipalID, model.RoleAdmin); err != nil {
			return "", err
		}
		a.logger.Info("admin role restored", slog.String("user_id", string(account.PrincipalID)))
	}
	return account.PrincipalID, nil
}

// Close stops every client and releases storage connections
func (a *App) Close() {
	a.Registry.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
