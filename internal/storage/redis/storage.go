package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Records are stored as JSON without expiry.
type Storage struct {
	client *redis.Client
	keys   keys
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	client, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg), nil
}

// Connect opens a client for cfg and verifies the connection
func Connect(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = DefaultConfig().DialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return &Storage{
		client: client,
		keys:   keys{prefix: prefix},
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keys.account(account.PrincipalID), data, 0)
	pipe.Set(ctx, s.keys.emailIndex(account.Email), string(account.PrincipalID), 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetAccount(ctx context.Context, id model.PrincipalID) (*model.Account, error) {
	var account model.Account
	if err := s.getJSON(ctx, s.keys.account(id), &account, model.ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	id, err := s.client.Get(ctx, s.keys.emailIndex(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccount(ctx, model.PrincipalID(id))
}

// Profile operations

func (s *Storage) SaveProfile(ctx context.Context, profile *model.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keys.profile(profile.ID), data, 0).Err()
}

func (s *Storage) GetProfile(ctx context.Context, id model.PrincipalID) (*model.Profile, error) {
	var profile model.Profile
	if err := s.getJSON(ctx, s.keys.profile(id), &profile, model.ErrProfileNotFound); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Storage) UpdateProfileRole(ctx context.Context, id model.PrincipalID, role model.Role) (*model.Profile, error) {
	if !role.IsValid() {
		return nil, model.ErrInvalidRole
	}

	key := s.keys.profile(id)
	var updated *model.Profile

	// Optimistic read-modify-write so a concurrent profile save is not lost
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrProfileNotFound
			}
			return err
		}

		var profile model.Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			return err
		}
		profile.Role = role
		profile.UpdatedAt = time.Now()

		out, err := json.Marshal(&profile)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = &profile
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Store record operations

func (s *Storage) SaveStore(ctx context.Context, store *model.StoreRecord) error {
	data, err := json.Marshal(store)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keys.storeByOwner(store.OwnerID), data, 0).Err()
}

func (s *Storage) GetStoreByOwner(ctx context.Context, ownerID model.PrincipalID) (*model.StoreRecord, error) {
	var store model.StoreRecord
	if err := s.getJSON(ctx, s.keys.storeByOwner(ownerID), &store, model.ErrStoreNotFound); err != nil {
		return nil, err
	}
	return &store, nil
}

// getJSON loads key into dst, mapping a missing key to notFound
func (s *Storage) getJSON(ctx context.Context, key string, dst any, notFound error) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}
