package backup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/marketid/internal/dependencies/mocks"
	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/testutil"
)

type BackupSuite struct {
	suite.Suite
	clock  *mocks.MockClock
	kv     *MemoryKV
	backup *Backup
	ctx    context.Context
}

func TestBackupSuite(t *testing.T) {
	suite.Run(t, new(BackupSuite))
}

func (s *BackupSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.kv = NewMemoryKV(s.clock)
	s.backup = New(s.kv, s.clock, DefaultConfig(), testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *BackupSuite) TestDefaultTTLIs24Hours() {
	s.Equal(24*time.Hour, s.backup.TTL())
}

func (s *BackupSuite) TestLoadReturnsStoredValue() {
	s.Require().NoError(s.backup.Set(s.ctx, "greeting", "hello"))

	s.Equal("hello", Load(s.ctx, s.backup, "greeting", "default"))
}

func (s *BackupSuite) TestLoadMissingReturnsDefault() {
	s.Equal("default", Load(s.ctx, s.backup, "missing", "default"))
}

func (s *BackupSuite) TestLoadJustBeforeExpiry() {
	s.Require().NoError(s.backup.Set(s.ctx, "k", 42))
	s.clock.Advance(24*time.Hour - time.Second)

	s.Equal(42, Load(s.ctx, s.backup, "k", 0))
}

func (s *BackupSuite) TestLoadAtExpiryReturnsDefault() {
	s.Require().NoError(s.backup.Set(s.ctx, "k", 42))
	s.clock.Advance(24 * time.Hour)

	s.Equal(0, Load(s.ctx, s.backup, "k", 0))
}

func (s *BackupSuite) TestStaleEntryIsDeleted() {
	// Written with a longer TTL so the KV still returns it
	longLived := New(s.kv, s.clock, Config{TTL: 48 * time.Hour}, testutil.NopLogger())
	s.Require().NoError(longLived.Set(s.ctx, "k", "old"))
	s.clock.Advance(25 * time.Hour)

	s.Equal("", Load(s.ctx, s.backup, "k", ""))
	s.Equal(0, s.kv.Len())
}

func (s *BackupSuite) TestExpiredEntryRemovedOnLoad() {
	for _, key := range []string{"a", "b", "c"} {
		s.Require().NoError(s.backup.Set(s.ctx, key, "v"))
	}
	s.clock.Advance(25 * time.Hour)

	for _, key := range []string{"a", "b", "c"} {
		s.Equal("", Load(s.ctx, s.backup, key, ""))
	}
	s.Equal(0, s.kv.Len())
}

func (s *BackupSuite) TestSweepRemovesExpiredEntries() {
	s.Require().NoError(s.backup.Set(s.ctx, "old", "v"))
	s.clock.Advance(23 * time.Hour)
	s.Require().NoError(s.backup.Set(s.ctx, "new", "v"))
	s.clock.Advance(2 * time.Hour)

	s.Equal(1, s.backup.Sweep())
	s.Equal(1, s.kv.Len())
	s.Equal("v", Load(s.ctx, s.backup, "new", ""))
}

func (s *BackupSuite) TestUnreadableEntryIsDeleted() {
	s.Require().NoError(s.kv.Set(s.ctx, "k", []byte("not json"), 0))

	s.Equal("def", Load(s.ctx, s.backup, "k", "def"))
	s.Equal(0, s.kv.Len())
}

func (s *BackupSuite) TestWrongTypeReturnsDefault() {
	s.Require().NoError(s.backup.Set(s.ctx, "k", "a string"))

	s.Equal(7, Load(s.ctx, s.backup, "k", 7))
}

func (s *BackupSuite) TestIdentitySlotRoundTrip() {
	slot := s.backup.ForClient("client-1")
	identity := &model.ResolvedIdentity{
		ID:     "u1",
		Email:  "alice@example.com",
		Name:   "Alice",
		Role:   model.RoleStore,
		Fields: map[string]any{"city": "Oslo"},
		Store:  &model.StoreRecord{ID: "s1", OwnerID: "u1", Name: "Shop"},
	}
	s.Require().NoError(slot.Save(s.ctx, identity))

	loaded := slot.Load(s.ctx)
	s.Require().NotNil(loaded)
	s.Equal(identity.ID, loaded.ID)
	s.Equal(model.RoleStore, loaded.Role)
	s.Equal("Shop", loaded.Store.Name)

	s.Nil(s.backup.ForClient("client-2").Load(s.ctx))
}

func (s *BackupSuite) TestIdentitySlotClear() {
	slot := s.backup.ForClient("client-1")
	s.Require().NoError(slot.Save(s.ctx, &model.ResolvedIdentity{ID: "u1", Role: model.RoleUser}))
	s.Require().NoError(slot.Clear(s.ctx))

	s.Nil(slot.Load(s.ctx))
}

func (s *BackupSuite) TestIdentitySlotSaveNilClears() {
	slot := s.backup.ForClient("client-1")
	s.Require().NoError(slot.Save(s.ctx, &model.ResolvedIdentity{ID: "u1", Role: model.RoleUser}))
	s.Require().NoError(slot.Save(s.ctx, nil))

	s.Nil(slot.Load(s.ctx))
}

func (s *BackupSuite) TestIdentitySlotExpires() {
	slot := s.backup.ForClient("client-1")
	s.Require().NoError(slot.Save(s.ctx, &model.ResolvedIdentity{ID: "u1", Role: model.RoleUser}))
	s.clock.Advance(25 * time.Hour)

	s.Nil(slot.Load(s.ctx))
}

func TestFileKV(t *testing.T) {
	s := new(fileKVSuite)
	suite.Run(t, s)
}

type fileKVSuite struct {
	suite.Suite
	kv  *FileKV
	ctx context.Context
}

func (s *fileKVSuite) SetupTest() {
	kv, err := NewFileKV(s.T().TempDir())
	s.Require().NoError(err)
	s.kv = kv
	s.ctx = context.Background()
}

func (s *fileKVSuite) TestSetGetDelete() {
	s.Require().NoError(s.kv.Set(s.ctx, "identity:abc/def", []byte(`{"a":1}`), time.Hour))

	data, err := s.kv.Get(s.ctx, "identity:abc/def")
	s.Require().NoError(err)
	s.JSONEq(`{"a":1}`, string(data))

	s.Require().NoError(s.kv.Delete(s.ctx, "identity:abc/def"))
	_, err = s.kv.Get(s.ctx, "identity:abc/def")
	s.ErrorIs(err, ErrNotFound)
}

func (s *fileKVSuite) TestDeleteMissingIsNoop() {
	s.NoError(s.kv.Delete(s.ctx, "missing"))
}

func (s *fileKVSuite) TestBackupExpiryRemovesFile() {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s.kv, clk, DefaultConfig(), testutil.NopLogger())
	s.Require().NoError(b.Set(s.ctx, "k", "v"))

	clk.Advance(24 * time.Hour)
	s.Equal("", Load(s.ctx, b, "k", ""))

	_, err := s.kv.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)
}

type redisKVSuite struct {
	suite.Suite
	mr  *miniredis.Miniredis
	kv  *RedisKV
	ctx context.Context
}

func TestRedisKV(t *testing.T) {
	suite.Run(t, new(redisKVSuite))
}

func (s *redisKVSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.kv = NewRedisKV(client, "marketid")
	s.ctx = context.Background()
}

func (s *redisKVSuite) TestBackupUsesNativeTTL() {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New(s.kv, clk, DefaultConfig(), testutil.NopLogger())
	s.Require().NoError(b.ForClient("c1").Save(s.ctx, &model.ResolvedIdentity{ID: "u1", Role: model.RoleUser}))

	s.Equal(24*time.Hour, s.mr.TTL("marketid:backup:identity:c1"))
}

func (s *redisKVSuite) TestExpiredKeyNotFound() {
	s.Require().NoError(s.kv.Set(s.ctx, "k", []byte("v"), time.Minute))
	s.mr.FastForward(2 * time.Minute)

	_, err := s.kv.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)
}

func (s *redisKVSuite) TestDelete() {
	s.Require().NoError(s.kv.Set(s.ctx, "k", []byte("v"), time.Minute))
	s.Require().NoError(s.kv.Delete(s.ctx, "k"))

	_, err := s.kv.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)
}
