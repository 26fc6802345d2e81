package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	accounts   map[model.PrincipalID]*model.Account
	emailIndex map[string]model.PrincipalID
	profiles   map[model.PrincipalID]*model.Profile
	stores     map[model.PrincipalID]*model.StoreRecord
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts:   make(map[model.PrincipalID]*model.Account),
		emailIndex: make(map[string]model.PrincipalID),
		profiles:   make(map[model.PrincipalID]*model.Profile),
		stores:     make(map[model.PrincipalID]*model.StoreRecord),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.PrincipalID] = account.Clone()
	s.emailIndex[normalizeEmail(account.Email)] = account.PrincipalID
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, id model.PrincipalID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[normalizeEmail(email)]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	account, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// Profile operations

func (s *Storage) SaveProfile(ctx context.Context, profile *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile.Clone()
	return nil
}

func (s *Storage) GetProfile(ctx context.Context, id model.PrincipalID) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return nil, model.ErrProfileNotFound
	}
	return profile.Clone(), nil
}

func (s *Storage) UpdateProfileRole(ctx context.Context, id model.PrincipalID, role model.Role) (*model.Profile, error) {
	if !role.IsValid() {
		return nil, model.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return nil, model.ErrProfileNotFound
	}
	profile.Role = role
	profile.UpdatedAt = time.Now()
	return profile.Clone(), nil
}

// Store record operations

func (s *Storage) SaveStore(ctx context.Context, store *model.StoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[store.OwnerID] = store.Clone()
	return nil
}

func (s *Storage) GetStoreByOwner(ctx context.Context, ownerID model.PrincipalID) (*model.StoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	store, ok := s.stores[ownerID]
	if !ok {
		return nil, model.ErrStoreNotFound
	}
	return store.Clone(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
