package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rolebot/internal/config"
)

func storageCfg(driver string) config.StorageConfig {
	return config.StorageConfig{Driver: driver}
}

func TestSaveRoleUpsertsByNaturalKey(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	first, err := m.SaveRole(ctx, Role{RoleID: "r1", ServerID: "g1", Name: "Crew", MemberCount: 3})
	req.NoError(err)
	req.NotEmpty(first.ID, "insert generates an identifier")

	second, err := m.SaveRole(ctx, Role{RoleID: "r1", ServerID: "g1", Name: "Crew", MemberCount: 12})
	req.NoError(err)
	req.Equal(first.ID, second.ID, "upsert keeps the stored identity")
	req.Equal(12, second.MemberCount)

	all, err := m.GetRoles(ctx, "")
	req.NoError(err)
	req.Len(all, 1, "exactly one record per roleId")
	req.Equal(12, all[0].MemberCount)
}

func TestSaveServerUpsert(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	a, err := m.SaveServer(ctx, Server{ServerID: "g1", Name: "Old Name"})
	req.NoError(err)
	req.False(a.JoinedAt.IsZero())

	b, err := m.SaveServer(ctx, Server{ServerID: "g1", Name: "New Name"})
	req.NoError(err)
	req.Equal(a.ID, b.ID)
	req.Equal("New Name", b.Name)
	req.Equal(a.JoinedAt, b.JoinedAt, "joinedAt is set once")

	servers, err := m.GetServers(ctx)
	req.NoError(err)
	req.Len(servers, 1)
}

func TestGetRolesFiltersByServer(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	_, err := m.SaveRole(ctx, Role{RoleID: "r1", ServerID: "g1", Name: "A"})
	req.NoError(err)
	_, err = m.SaveRole(ctx, Role{RoleID: "r2", ServerID: "g2", Name: "B"})
	req.NoError(err)

	got, err := m.GetRoles(ctx, "g2")
	req.NoError(err)
	req.Len(got, 1)
	req.Equal("r2", got[0].RoleID)
}

func TestSaveDmLogAlwaysInsertsAndStamps(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	stale := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := m.SaveDmLog(ctx, DmLog{RoleID: "r1", Message: "a", SentCount: 2, FailedCount: 1, Timestamp: stale})
	req.NoError(err)
	req.Equal(clock, first.Timestamp, "write time wins over the caller's timestamp")

	clock = clock.Add(time.Minute)
	_, err = m.SaveDmLog(ctx, DmLog{RoleID: "r1", Message: "b"})
	req.NoError(err)
	clock = clock.Add(time.Minute)
	_, err = m.SaveDmLog(ctx, DmLog{RoleID: "r2", Message: "c"})
	req.NoError(err)

	logs, err := m.GetDmLogs(ctx, "")
	req.NoError(err)
	req.Len(logs, 3)
	req.Equal("c", logs[0].Message, "newest first")
	req.Equal("b", logs[1].Message)
	req.Equal("a", logs[2].Message)

	scoped, err := m.GetDmLogs(ctx, "r1")
	req.NoError(err)
	req.Len(scoped, 2)
}

func TestBotConfigUpsertAndMissingKey(t *testing.T) {
	req := require.New(t)
	m := NewMemory()
	ctx := context.Background()

	v, ok, err := m.GetBotConfig(ctx, "unset")
	req.NoError(err, "missing key is not an error")
	req.False(ok)
	req.Nil(v)

	_, err = m.SetBotConfig(ctx, "prefix", "!")
	req.NoError(err)
	_, err = m.SetBotConfig(ctx, "prefix", "?")
	req.NoError(err)

	v, ok, err = m.GetBotConfig(ctx, "prefix")
	req.NoError(err)
	req.True(ok)
	req.Equal("?", v, "last write wins")

	all, err := m.GetAllBotConfig(ctx)
	req.NoError(err)
	req.Len(all, 1)
}

func TestOpenDriverSwitch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	s, err := Open(ctx, storageCfg("none"), nil, zerolog.Nop())
	req.ErrorIs(err, ErrDisabled)
	req.Nil(s)

	s, err = Open(ctx, storageCfg("memory"), nil, zerolog.Nop())
	req.NoError(err)
	req.NotNil(s)
	req.NoError(s.Ping(ctx))

	_, err = Open(ctx, storageCfg("cassandra"), nil, zerolog.Nop())
	req.Error(err)
}
