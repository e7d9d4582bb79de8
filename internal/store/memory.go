package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Used by tests and available as the
// "memory" driver when running without a database. All operations are
// serialized under one mutex, so upserts are atomic by construction.
type Memory struct {
	mu        sync.Mutex
	servers   []Server
	roles     []Role
	dmLogs    []DmLog
	botConfig map[string]ConfigEntry

	// now is swappable for tests.
	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		botConfig: map[string]ConfigEntry{},
		now:       time.Now,
	}
}

func (m *Memory) SaveServer(ctx context.Context, s Server) (Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.servers {
		if m.servers[i].ServerID == s.ServerID {
			m.servers[i].Name = s.Name
			return m.servers[i], nil
		}
	}
	if s.JoinedAt.IsZero() {
		s.JoinedAt = m.now().UTC()
	}
	s.ID = newID()
	m.servers = append(m.servers, s)
	return s, nil
}

func (m *Memory) GetServers(ctx context.Context) ([]Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Server(nil), m.servers...), nil
}

func (m *Memory) SaveRole(ctx context.Context, r Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].RoleID == r.RoleID {
			m.roles[i].Name = r.Name
			m.roles[i].MemberCount = r.MemberCount
			m.roles[i].ServerID = r.ServerID
			return m.roles[i], nil
		}
	}
	r.ID = newID()
	m.roles = append(m.roles, r)
	return r, nil
}

func (m *Memory) GetRoles(ctx context.Context, serverID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		if serverID == "" || r.ServerID == serverID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SaveDmLog(ctx context.Context, l DmLog) (DmLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = newID()
	l.Timestamp = m.now().UTC()
	m.dmLogs = append(m.dmLogs, l)
	return l, nil
}

func (m *Memory) GetDmLogs(ctx context.Context, roleID string) ([]DmLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DmLog, 0, len(m.dmLogs))
	for _, l := range m.dmLogs {
		if roleID == "" || l.RoleID == roleID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *Memory) SetBotConfig(ctx context.Context, key string, value any) (ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.botConfig[key]
	if !ok {
		entry = ConfigEntry{ID: newID(), Key: key}
	}
	entry.Value = value
	m.botConfig[key] = entry
	return entry, nil
}

func (m *Memory) GetBotConfig(ctx context.Context, key string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.botConfig[key]
	if !ok {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (m *Memory) GetAllBotConfig(ctx context.Context) ([]ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConfigEntry, 0, len(m.botConfig))
	for _, e := range m.botConfig {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close(ctx context.Context) error { return nil }
