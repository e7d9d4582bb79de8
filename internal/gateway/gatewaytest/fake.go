// Package gatewaytest provides an in-memory gateway fake for tests.
package gatewaytest

import (
	"context"
	"sync"
	"time"

	"rolebot/internal/gateway"
)

// Fake implements gateway.Gateway with scripted data and failures.
// Configure the exported fields before use; they must not be mutated once
// the fake is shared between goroutines.
type Fake struct {
	Tag        string
	OpenErr    error
	RolesErr   error
	MembersErr error
	GuildList  []gateway.Guild
	RoleList   []gateway.Role
	// MembersByRole maps role id to the members holding it.
	MembersByRole map[string][]gateway.Member
	// DMFailures maps user id to the delivery error for that recipient.
	DMFailures map[string]error
	// SendDelay simulates per-delivery latency.
	SendDelay  time.Duration
	LatencyVal time.Duration

	mu       sync.Mutex
	sent     []string
	opened   bool
	closed   bool
	presence string
	handlers []gateway.MessageHandler
}

var _ gateway.Gateway = (*Fake)(nil)

func (f *Fake) Open(ctx context.Context) error {
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.mu.Lock()
	f.opened = true
	f.closed = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) SelfTag() string { return f.Tag }

func (f *Fake) SetPresence(activity string) error {
	f.mu.Lock()
	f.presence = activity
	f.mu.Unlock()
	return nil
}

func (f *Fake) Guilds(ctx context.Context) ([]gateway.Guild, error) {
	return append([]gateway.Guild(nil), f.GuildList...), nil
}

func (f *Fake) Roles(ctx context.Context, guildID string) ([]gateway.Role, error) {
	if f.RolesErr != nil {
		return nil, f.RolesErr
	}
	return append([]gateway.Role(nil), f.RoleList...), nil
}

func (f *Fake) RoleMembers(ctx context.Context, guildID, roleID string) ([]gateway.Member, error) {
	if f.MembersErr != nil {
		return nil, f.MembersErr
	}
	members, ok := f.MembersByRole[roleID]
	if !ok {
		return nil, gateway.ErrRoleNotFound
	}
	return append([]gateway.Member(nil), members...), nil
}

func (f *Fake) SendDM(ctx context.Context, userID, content string) error {
	if f.SendDelay > 0 {
		select {
		case <-time.After(f.SendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := f.DMFailures[userID]; ok {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, userID)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Latency() time.Duration { return f.LatencyVal }

func (f *Fake) OnMessage(h gateway.MessageHandler) {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
}

// Sent returns the user ids that received a DM, in delivery order.
func (f *Fake) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// Opened reports whether Open succeeded since the last Close.
func (f *Fake) Opened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened && !f.closed
}

// Presence returns the last activity set via SetPresence.
func (f *Fake) Presence() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presence
}

// Deliver pushes an inbound message through the registered handlers, the way
// the platform client would.
func (f *Fake) Deliver(ctx context.Context, msg gateway.Message, reply gateway.ReplyFunc) {
	f.mu.Lock()
	handlers := append([]gateway.MessageHandler(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(ctx, msg, reply)
	}
}
