// Package store is the persistence gateway: a CRUD facade over a document
// store for servers, roles, DM delivery logs, and key/value bot config.
//
// Drivers:
//   - "mongo":  MongoDB (production)
//   - "memory": in-process maps, lost on exit (tests, demo mode)
//   - "none":   persistence disabled
//
// Upserts are keyed by natural ids (serverId, roleId, config key) and are
// atomic in every driver: one conditional write, no check-then-insert
// window. Storage failures are recorded in the event feed and returned to
// the caller, never swallowed.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rolebot/internal/config"
	"rolebot/internal/eventlog"
)

// ErrDisabled is returned by Open for the "none" driver.
var ErrDisabled = errors.New("storage disabled")

// Collection names in the document store.
const (
	CollServers   = "servers"
	CollRoles     = "roles"
	CollDmLogs    = "dm_logs"
	CollBotConfig = "bot_config"
)

// Server is a persisted server record, keyed naturally by ServerID.
type Server struct {
	ID       string    `bson:"_id,omitempty" json:"id"`
	ServerID string    `bson:"serverId" json:"serverId"`
	Name     string    `bson:"name" json:"name"`
	JoinedAt time.Time `bson:"joinedAt" json:"joinedAt"`
}

// Role is a persisted role record, keyed naturally by RoleID.
type Role struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	RoleID      string `bson:"roleId" json:"roleId"`
	ServerID    string `bson:"serverId" json:"serverId"`
	Name        string `bson:"name" json:"name"`
	MemberCount int    `bson:"memberCount" json:"memberCount"`
}

// DmLog is one broadcast's historical record. Always inserted, never
// updated; Timestamp is stamped at write time.
type DmLog struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	RoleID      string    `bson:"roleId" json:"roleId"`
	Message     string    `bson:"message" json:"message"`
	SentCount   int       `bson:"sentCount" json:"sentCount"`
	FailedCount int       `bson:"failedCount" json:"failedCount"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

// ConfigEntry is one bot_config key/value pair.
type ConfigEntry struct {
	ID    string `bson:"_id,omitempty" json:"id"`
	Key   string `bson:"key" json:"key"`
	Value any    `bson:"value" json:"value"`
}

// Store is the persistence API consumed by the rest of the bot.
type Store interface {
	// SaveServer upserts by ServerID and returns the resulting record,
	// with a generated ID on first insert.
	SaveServer(ctx context.Context, s Server) (Server, error)
	GetServers(ctx context.Context) ([]Server, error)

	// SaveRole upserts by RoleID, updating name and member count in place.
	SaveRole(ctx context.Context, r Role) (Role, error)
	// GetRoles lists roles, filtered by server when serverID is non-empty.
	GetRoles(ctx context.Context, serverID string) ([]Role, error)

	SaveDmLog(ctx context.Context, l DmLog) (DmLog, error)
	// GetDmLogs lists history newest-first, filtered by role when roleID is
	// non-empty.
	GetDmLogs(ctx context.Context, roleID string) ([]DmLog, error)

	SetBotConfig(ctx context.Context, key string, value any) (ConfigEntry, error)
	// GetBotConfig returns ok=false for a missing key; that is not an error.
	GetBotConfig(ctx context.Context, key string) (any, bool, error)
	GetAllBotConfig(ctx context.Context) ([]ConfigEntry, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open initializes the configured driver. The "none" driver returns
// ErrDisabled so callers can tell deliberate opt-out from a failure.
func Open(ctx context.Context, cfg config.StorageConfig, feed *eventlog.Feed, log zerolog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "none":
		return nil, ErrDisabled
	case "memory":
		return NewMemory(), nil
	case "mongo", "mongodb":
		return openMongo(ctx, cfg, feed, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

// newID generates a document id for inserts.
func newID() string { return uuid.NewString() }
