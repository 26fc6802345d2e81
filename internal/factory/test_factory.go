package factory

import (
	"context"
	"time"

	"github.com/mcoot/marketid/internal/backup"
	"github.com/mcoot/marketid/internal/dependencies/mocks"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/storage/memory"
	"github.com/mcoot/marketid/internal/testutil"
)

// TestPassword is the password TestApp.CreateUser registers accounts with
const TestPassword = "secret123"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	MemoryKV   *backup.MemoryKV
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	kv := backup.NewMemoryKV(mockClock)

	authCfg := authn.DefaultConfig()
	authCfg.Secret = "test-secret"
	identityCfg := identity.DefaultConfig()
	identityCfg.Debounce = 0

	app := newWithDependencies(store, kv, mockClock, mockRandom, Config{
		AuthConfig:     authCfg,
		IdentityConfig: identityCfg,
	}, testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		MemoryKV:   kv,
	}
}

// CreateUser registers an account with a profile of the given role, and a
// store record for the store role. It does not sign in.
func (t *TestApp) CreateUser(ctx context.Context, email, name string, role model.Role) (model.PrincipalID, error) {
	principal, err := t.AuthService.SignUp(ctx, email, TestPassword, map[string]any{
		model.MetadataRole: string(role),
		model.MetadataName: name,
	})
	if err != nil {
		return "", err
	}
	now := t.MockClock.Now()
	if err := t.Storage.SaveProfile(ctx, &model.Profile{
		ID:        principal.ID,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", err
	}
	if role == model.RoleStore {
		if err := t.Storage.SaveStore(ctx, &model.StoreRecord{
			ID:        model.StoreID("store-" + string(principal.ID)),
			OwnerID:   principal.ID,
			Name:      name + "'s Store",
			CreatedAt: now,
		}); err != nil {
			return "", err
		}
	}
	return principal.ID, nil
}
