// Package gateway defines the seam between the bot and the chat platform.
//
// Components talk to the Gateway interface, never to the platform client
// directly. This keeps the session lifecycle, role directory and broadcast
// engine testable with an in-memory fake, and confines the platform SDK to
// one adapter package.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoGuild is returned when an operation needs a server context and
	// the session is not a member of any guild.
	ErrNoGuild = errors.New("no guild available")

	// ErrRoleNotFound is returned when a role id or name does not resolve
	// in the target guild.
	ErrRoleNotFound = errors.New("role not found")
)

// Guild is a server context on the chat platform.
type Guild struct {
	ID          string
	Name        string
	OwnerID     string
	MemberCount int
}

// Role is a permission group within a guild.
//
// Everyone marks the implicit all-members role; Managed marks roles owned
// by an integration. Both are excluded from operator-facing listings.
type Role struct {
	ID          string
	Name        string
	Managed     bool
	Everyone    bool
	MemberCount int
}

// Member is a guild member holding some role.
type Member struct {
	ID            string
	Username      string
	Discriminator string
}

// Message is an inbound guild text message seen by the command surface.
type Message struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	AuthorTag string
	Content   string
	Admin     bool
}

// ReplyFunc posts a response into the channel the message arrived on.
type ReplyFunc func(ctx context.Context, text string) error

// MessageHandler receives inbound messages. Handlers run on the platform
// client's dispatch goroutine and should return quickly.
type MessageHandler func(ctx context.Context, msg Message, reply ReplyFunc)

// Gateway is the minimal platform surface the bot consumes.
type Gateway interface {
	// Open establishes the session. It blocks until the platform confirms
	// the login or the context is done.
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// SelfTag is the logged-in account's display tag. Only valid after a
	// successful Open.
	SelfTag() string

	// SetPresence sets the account's visible activity. Best effort.
	SetPresence(activity string) error

	Guilds(ctx context.Context) ([]Guild, error)
	Roles(ctx context.Context, guildID string) ([]Role, error)

	// RoleMembers resolves the current membership snapshot of one role.
	// Returns ErrRoleNotFound if the role does not exist in the guild.
	RoleMembers(ctx context.Context, guildID, roleID string) ([]Member, error)

	// SendDM delivers a direct message to one user. Failures are
	// per-recipient (closed DMs, platform rejection) and do not affect the
	// session.
	SendDM(ctx context.Context, userID, content string) error

	// Latency is the gateway round-trip time, zero when unknown.
	Latency() time.Duration

	// OnMessage registers a handler for inbound guild messages. Must be
	// called before Open.
	OnMessage(h MessageHandler)
}

// Dialer constructs an unopened Gateway for a credential. The session
// service uses it so tests can inject fakes.
type Dialer func(token string) (Gateway, error)
