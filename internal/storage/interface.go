package storage

import (
	"context"

	"github.com/mcoot/marketid/internal/model"
)

// Storage defines the interface for record persistence behind the identity engine
type Storage interface {
	// Account operations
	SaveAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id model.PrincipalID) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// Profile operations
	SaveProfile(ctx context.Context, profile *model.Profile) error
	GetProfile(ctx context.Context, id model.PrincipalID) (*model.Profile, error)
	UpdateProfileRole(ctx context.Context, id model.PrincipalID, role model.Role) (*model.Profile, error)

	// Store record operations
	SaveStore(ctx context.Context, store *model.StoreRecord) error
	GetStoreByOwner(ctx context.Context, ownerID model.PrincipalID) (*model.StoreRecord, error)
}
