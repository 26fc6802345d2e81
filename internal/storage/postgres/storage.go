package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/storage"
)

// Storage persists accounts, profiles and store records in PostgreSQL
type Storage struct {
	pool *pgxpool.Pool
}

// New connects, applies the schema and returns a ready Storage
func New(ctx context.Context, cfg Config) (*Storage, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Close drains the connection pool
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	const query = `
INSERT INTO accounts (principal_id, email, password_hash, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (principal_id) DO UPDATE
SET email = EXCLUDED.email,
    password_hash = EXCLUDED.password_hash,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at
`
	_, err := s.pool.Exec(ctx, query,
		account.PrincipalID,
		account.Email,
		account.PasswordHash,
		jsonObject(account.Metadata),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return model.ErrEmailExists
	}
	return err
}

func (s *Storage) GetAccount(ctx context.Context, id model.PrincipalID) (*model.Account, error) {
	const query = `
SELECT principal_id, email, password_hash, metadata, created_at, updated_at
FROM accounts WHERE principal_id = $1
`
	return scanAccount(s.pool.QueryRow(ctx, query, id))
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	const query = `
SELECT principal_id, email, password_hash, metadata, created_at, updated_at
FROM accounts WHERE lower(email) = lower($1)
`
	return scanAccount(s.pool.QueryRow(ctx, query, email))
}

// Profile operations

func (s *Storage) SaveProfile(ctx context.Context, profile *model.Profile) error {
	const query = `
INSERT INTO profiles (id, name, role, fields, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    role = EXCLUDED.role,
    fields = EXCLUDED.fields,
    updated_at = EXCLUDED.updated_at
`
	_, err := s.pool.Exec(ctx, query,
		profile.ID,
		profile.Name,
		string(profile.Role),
		jsonObject(profile.Fields),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return err
}

func (s *Storage) GetProfile(ctx context.Context, id model.PrincipalID) (*model.Profile, error) {
	const query = `
SELECT id, name, role, fields, created_at, updated_at
FROM profiles WHERE id = $1
`
	return scanProfile(s.pool.QueryRow(ctx, query, id))
}

func (s *Storage) UpdateProfileRole(ctx context.Context, id model.PrincipalID, role model.Role) (*model.Profile, error) {
	if !role.IsValid() {
		return nil, model.ErrInvalidRole
	}
	const query = `
UPDATE profiles SET role = $2, updated_at = $3
WHERE id = $1
RETURNING id, name, role, fields, created_at, updated_at
`
	return scanProfile(s.pool.QueryRow(ctx, query, id, string(role), time.Now().UTC()))
}

// Store record operations

func (s *Storage) SaveStore(ctx context.Context, store *model.StoreRecord) error {
	const query = `
INSERT INTO stores (id, owner_id, name, description, fields, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (owner_id) DO UPDATE
SET name = EXCLUDED.name,
    description = EXCLUDED.description,
    fields = EXCLUDED.fields
`
	_, err := s.pool.Exec(ctx, query,
		store.ID,
		store.OwnerID,
		store.Name,
		store.Description,
		jsonObject(store.Fields),
		store.CreatedAt,
	)
	return err
}

func (s *Storage) GetStoreByOwner(ctx context.Context, ownerID model.PrincipalID) (*model.StoreRecord, error) {
	const query = `
SELECT id, owner_id, name, description, fields, created_at
FROM stores WHERE owner_id = $1
`
	var store model.StoreRecord
	err := s.pool.QueryRow(ctx, query, ownerID).Scan(
		&store.ID,
		&store.OwnerID,
		&store.Name,
		&store.Description,
		&store.Fields,
		&store.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrStoreNotFound
		}
		return nil, err
	}
	return &store, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.PrincipalID,
		&account.Email,
		&account.PasswordHash,
		&account.Metadata,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		profile model.Profile
		role    string
	)
	err := row.Scan(
		&profile.ID,
		&profile.Name,
		&role,
		&profile.Fields,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrProfileNotFound
		}
		return nil, err
	}
	profile.Role = model.Role(role)
	return &profile, nil
}

// jsonObject keeps NOT NULL jsonb columns populated when a map is nil
func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
