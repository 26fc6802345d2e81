package factory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) TearDownTest() {
	s.app.Close()
}

func (s *IntegrationSuite) newClient() *identity.Engine {
	_, engine := s.app.Registry.Create(s.ctx)
	select {
	case <-engine.Ready():
	case <-time.After(time.Second):
		s.FailNow("engine never became ready")
	}
	return engine
}

// Test: store owner registers, signs in on a second client and resolves the store record
func (s *IntegrationSuite) TestStoreOwnerFlow() {
	first := s.newClient()

	resolved, err := first.Register(s.ctx, identity.RegisterRequest{
		Email:     "shop@example.com",
		Password:  "secret123",
		Name:      "Shop Owner",
		Role:      model.RoleStore,
		StoreName: "Corner Shop",
	})
	s.Require().NoError(err)
	s.Equal(model.RoleStore, resolved.Role)
	s.Require().NotNil(resolved.Store)
	s.Equal("Corner Shop", resolved.Store.Name)
	s.True(first.HasPermission(model.CapabilityStoreOwner))
	s.False(first.HasPermission(model.CapabilityAdmin))

	second := s.newClient()
	s.Equal(model.SessionAnonymous, second.State())

	signedIn, err := second.Login(s.ctx, "shop@example.com", "secret123")
	s.Require().NoError(err)
	s.Equal(resolved.ID, signedIn.ID)
	s.Equal("Shop Owner", signedIn.Name)
	s.Equal(model.SessionResolved, second.State())
}

// Test: an admin promotion reaches a signed-in client and the token converges
func (s *IntegrationSuite) TestRoleChangePropagates() {
	userID, err := s.app.CreateUser(s.ctx, "bob@example.com", "Bob", model.RoleUser)
	s.Require().NoError(err)

	engine := s.newClient()
	_, err = engine.Login(s.ctx, "bob@example.com", TestPassword)
	s.Require().NoError(err)
	s.False(engine.HasPermission(model.CapabilityStore))

	_, err = s.app.AuthService.SetRole(s.ctx, userID, model.RoleStore)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		id := engine.Identity()
		return id != nil && id.Role == model.RoleStore && id.TokenRole == model.RoleStore
	}, 2*time.Second, 10*time.Millisecond)
	engine.WaitReissue()
	s.True(engine.HasPermission(model.CapabilityStore))
}

// Test: revoking a user signs out every client holding a session for them
func (s *IntegrationSuite) TestRevokeUserSignsOutAllClients() {
	userID, err := s.app.CreateUser(s.ctx, "carol@example.com", "Carol", model.RoleUser)
	s.Require().NoError(err)

	a := s.newClient()
	b := s.newClient()
	_, err = a.Login(s.ctx, "carol@example.com", TestPassword)
	s.Require().NoError(err)
	_, err = b.Login(s.ctx, "carol@example.com", TestPassword)
	s.Require().NoError(err)

	s.Require().NoError(s.app.AuthService.RevokeUser(s.ctx, userID))

	s.Eventually(func() bool {
		return a.State() == model.SessionAnonymous && b.State() == model.SessionAnonymous
	}, 2*time.Second, 10*time.Millisecond)
	s.Nil(a.OptimisticIdentity())
}

// Test: a client that lost its backend session does not keep its backup
func (s *IntegrationSuite) TestBackupDroppedWithoutSession() {
	_, err := s.app.CreateUser(s.ctx, "dave@example.com", "Dave", model.RoleUser)
	s.Require().NoError(err)

	id, engine := s.app.Registry.Create(s.ctx)
	<-engine.Ready()
	_, err = engine.Login(s.ctx, "dave@example.com", TestPassword)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		return s.app.Backup.ForClient(id).Load(s.ctx) != nil
	}, time.Second, 10*time.Millisecond)

	// A fresh engine for the same client has no backend session, so the
	// backup is dropped once the session resolves anonymous
	restarted := s.app.NewEngine(id)
	defer restarted.Close()
	restarted.Start(s.ctx)
	<-restarted.Ready()
	s.Equal(model.SessionAnonymous, restarted.State())
	s.Nil(restarted.OptimisticIdentity())
	s.Nil(s.app.Backup.ForClient(id).Load(s.ctx))
}

// Test: the backup expires after its TTL
func (s *IntegrationSuite) TestBackupExpires() {
	_, err := s.app.CreateUser(s.ctx, "erin@example.com", "Erin", model.RoleUser)
	s.Require().NoError(err)

	id, engine := s.app.Registry.Create(s.ctx)
	<-engine.Ready()
	_, err = engine.Login(s.ctx, "erin@example.com", TestPassword)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		return s.app.Backup.ForClient(id).Load(s.ctx) != nil
	}, time.Second, 10*time.Millisecond)

	s.app.MockClock.Advance(s.app.Backup.TTL())
	s.Nil(s.app.Backup.ForClient(id).Load(s.ctx))
}

func (s *IntegrationSuite) TestEnsureAdmin() {
	adminID, err := s.app.EnsureAdmin(s.ctx, "admin@example.com", "adminpass1")
	s.Require().NoError(err)

	profile, err := s.app.Storage.GetProfile(s.ctx, adminID)
	s.Require().NoError(err)
	s.Equal(model.RoleAdmin, profile.Role)

	// Demoted admins are restored
	_, err = s.app.AuthService.SetRole(s.ctx, adminID, model.RoleUser)
	s.Require().NoError(err)
	again, err := s.app.EnsureAdmin(s.ctx, "admin@example.com", "adminpass1")
	s.Require().NoError(err)
	s.Equal(adminID, again)

	profile, err = s.app.Storage.GetProfile(s.ctx, adminID)
	s.Require().NoError(err)
	s.Equal(model.RoleAdmin, profile.Role)

	engine := s.newClient()
	_, err = engine.Login(s.ctx, "admin@example.com", "adminpass1")
	s.Require().NoError(err)
	s.True(engine.HasPermission(model.CapabilityAdmin))
	s.True(engine.HasPermission(model.CapabilityStoreOwner))
}

func (s *IntegrationSuite) TestIdleClientsEvicted() {
	s.newClient()
	s.newClient()
	s.Equal(2, s.app.Registry.Len())

	s.app.MockClock.Advance(25 * time.Hour)
	s.Equal(2, s.app.Registry.CleanupIdle())
	s.Equal(0, s.app.Registry.Len())
}

func (s *IntegrationSuite) TestEvictedClientBackupSwept() {
	_, err := s.app.CreateUser(s.ctx, "fay@example.com", "Fay", model.RoleUser)
	s.Require().NoError(err)

	id, engine := s.app.Registry.Create(s.ctx)
	<-engine.Ready()
	_, err = engine.Login(s.ctx, "fay@example.com", TestPassword)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		return s.app.Backup.ForClient(id).Load(s.ctx) != nil
	}, time.Second, 10*time.Millisecond)

	s.app.MockClock.Advance(25 * time.Hour)
	s.Equal(1, s.app.Registry.CleanupIdle())
	s.Equal(1, s.app.Backup.Sweep())
	s.Equal(0, s.app.MemoryKV.Len())
}
