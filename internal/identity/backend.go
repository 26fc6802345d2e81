package identity

import (
	"context"

	"github.com/mcoot/marketid/internal/model"
)

// AuthBackend is the authentication service an engine holds a session with
type AuthBackend interface {
	// CurrentSession returns the signed-in principal, or nil with no error when signed out
	CurrentSession(ctx context.Context) (*model.Principal, error)
	// Subscribe registers fn for session-change events until the returned func is called
	Subscribe(fn func(model.SessionEvent)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*model.Principal, error)
	SignOut(ctx context.Context) error
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Principal, error)
}

// SessionRefresher is implemented by backends that can re-mint the current
// session so its claims reflect the latest records
type SessionRefresher interface {
	RefreshSession(ctx context.Context) (*model.Principal, error)
}

// ProfileSource loads profiles by principal ID
type ProfileSource interface {
	GetProfile(ctx context.Context, id model.PrincipalID) (*model.Profile, error)
}

// StoreSource loads the store record owned by a principal
type StoreSource interface {
	GetStoreByOwner(ctx context.Context, ownerID model.PrincipalID) (*model.StoreRecord, error)
}

// RecordWriter persists the records created at registration
type RecordWriter interface {
	SaveProfile(ctx context.Context, profile *model.Profile) error
	SaveStore(ctx context.Context, store *model.StoreRecord) error
}

// IdentityBackup keeps the last resolved identity across restarts.
// It only seeds the optimistic identity and is never used for permissions.
type IdentityBackup interface {
	Save(ctx context.Context, identity *model.ResolvedIdentity) error
	Load(ctx context.Context) *model.ResolvedIdentity
	Clear(ctx context.Context) error
}
