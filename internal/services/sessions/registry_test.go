package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/marketid/internal/backup"
	"github.com/mcoot/marketid/internal/dependencies/mocks"
	"github.com/mcoot/marketid/internal/identity"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
	"github.com/mcoot/marketid/internal/storage/memory"
	"github.com/mcoot/marketid/internal/testutil"
)

type RegistrySuite struct {
	suite.Suite
	clock    *mocks.MockClock
	random   *mocks.MockRandom
	service  *authn.Service
	registry *Registry
	built    []string
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Now().UTC())
	s.random = mocks.NewMockRandom()
	s.built = nil
	s.ctx = context.Background()

	store := memory.New()
	logger := testutil.NopLogger()
	cfg := authn.DefaultConfig()
	cfg.Secret = "test-secret"
	s.service = authn.New(store, s.clock, s.random, cfg, logger)
	b := backup.New(backup.NewMemoryKV(s.clock), s.clock, backup.DefaultConfig(), logger)

	factory := func(clientID string) *identity.Engine {
		s.built = append(s.built, clientID)
		return identity.NewEngine(identity.Deps{
			Backend:  authn.NewClient(s.service, logger),
			Profiles: store,
			Stores:   store,
			Records:  store,
			Backup:   b.ForClient(clientID),
			Clock:    s.clock,
			Logger:   logger,
		}, identity.DefaultConfig())
	}
	s.registry = NewRegistry(factory, s.clock, s.random, DefaultConfig(), logger)
}

func (s *RegistrySuite) TearDownTest() {
	s.registry.Close()
	s.service.Close()
}

func (s *RegistrySuite) TestCreateStartsEngine() {
	s.random.QueueString("client-a")

	id, engine := s.registry.Create(s.ctx)

	s.Equal("client-a", id)
	s.Equal([]string{"client-a"}, s.built)
	select {
	case <-engine.Ready():
	case <-time.After(time.Second):
		s.Fail("engine not started")
	}
	s.Equal(model.SessionAnonymous, engine.State())
}

func (s *RegistrySuite) TestCreateRetriesOnCollision() {
	s.random.QueueString("dup", "dup", "fresh")

	first, _ := s.registry.Create(s.ctx)
	second, _ := s.registry.Create(s.ctx)

	s.Equal("dup", first)
	s.Equal("fresh", second)
	s.Equal(2, s.registry.Len())
}

func (s *RegistrySuite) TestGetUnknown() {
	_, err := s.registry.Get("nope")
	s.ErrorIs(err, model.ErrClientNotFound)
}

func (s *RegistrySuite) TestGetOrCreate() {
	id, engine, created := s.registry.GetOrCreate(s.ctx, "")
	s.True(created)

	sameID, same, created := s.registry.GetOrCreate(s.ctx, id)
	s.False(created)
	s.Equal(id, sameID)
	s.Same(engine, same)

	otherID, _, created := s.registry.GetOrCreate(s.ctx, "stale-cookie")
	s.True(created)
	s.NotEqual("stale-cookie", otherID)
}

func (s *RegistrySuite) TestRemove() {
	id, _ := s.registry.Create(s.ctx)

	s.registry.Remove(id)

	_, err := s.registry.Get(id)
	s.ErrorIs(err, model.ErrClientNotFound)
}

func (s *RegistrySuite) TestCleanupIdle() {
	idle, _ := s.registry.Create(s.ctx)
	s.clock.Advance(23 * time.Hour)
	active, _ := s.registry.Create(s.ctx)
	s.clock.Advance(2 * time.Hour)

	s.Equal(1, s.registry.CleanupIdle())

	_, err := s.registry.Get(idle)
	s.ErrorIs(err, model.ErrClientNotFound)
	_, err = s.registry.Get(active)
	s.NoError(err)
}

func (s *RegistrySuite) TestGetRefreshesLastSeen() {
	id, _ := s.registry.Create(s.ctx)
	s.clock.Advance(20 * time.Hour)
	_, _ = s.registry.Get(id)
	s.clock.Advance(20 * time.Hour)

	s.Equal(0, s.registry.CleanupIdle())
}

func (s *RegistrySuite) TestClientsHaveIndependentSessions() {
	_, err := s.service.SignUp(s.ctx, "alice@example.com", "password123", nil)
	s.Require().NoError(err)

	_, a := s.registry.Create(s.ctx)
	_, b := s.registry.Create(s.ctx)
	<-a.Ready()
	<-b.Ready()

	_, err = a.Login(s.ctx, "alice@example.com", "password123")
	s.Require().NoError(err)

	s.True(a.IsAuthenticated())
	s.False(b.IsAuthenticated())
}
