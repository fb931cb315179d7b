// Package command defines the installable command contract, the registry
// that resolves names and aliases, the per-(command,sender) cooldown ledger,
// and the context object handlers run with.
package command

import (
	"context"
	"time"

	"wavebot/internal/continuation"
	"wavebot/internal/message"
	"wavebot/internal/permission"
	"wavebot/internal/storage"
	"wavebot/internal/transport"
)

// Command is a loadable unit the dispatcher can invoke.
type Command interface {
	Name() string
	Description() string
	Aliases() []string
	Tier() permission.Tier
	Cooldown() time.Duration
	Run(ctx context.Context, inv *Context) error
}

// ReactionHandler is implemented by commands that want reaction follow-ups
// routed to them when a continuation names the command but carries no
// callback of its own.
type ReactionHandler interface {
	HandleReaction(ctx context.Context, inv *Context, f *continuation.Followup) error
}

// Context carries everything a handler invocation needs: the normalized
// message, parsed arguments, identities, group metadata, the effective
// prefix, and references for sending and for registering continuations.
type Context struct {
	Transport transport.Transport
	Store     *storage.Storage
	Resolver  *permission.Resolver
	Commands  *Registry
	Replies   *continuation.Registry
	Reactions *continuation.Registry

	Msg    *message.Normalized
	Args   []string
	Sender string
	BotID  string
	Prefix string // effective prefix for this chat
	// DefaultPrefix is the configured process-wide prefix, before any stored
	// global or chat-local override.
	DefaultPrefix string
	Group         *transport.GroupMetadata // nil outside group context
}

// Reply sends text to the originating chat, quoting the triggering message.
func (c *Context) Reply(ctx context.Context, text string) (*transport.SentMessage, error) {
	return c.Transport.SendMessage(ctx, c.Msg.ChatID,
		transport.Content{Text: text},
		&transport.SendOptions{Quoted: &c.Msg.Key})
}

// Send sends text to the originating chat without quoting.
func (c *Context) Send(ctx context.Context, text string) (*transport.SentMessage, error) {
	return c.Transport.SendMessage(ctx, c.Msg.ChatID, transport.Content{Text: text}, nil)
}
