// Package continuation holds the ephemeral callbacks a command attaches to an
// outgoing message so a later reply or reaction can resume it. Entries are
// owned exclusively by the registry; handlers only receive a deletion handle.
package continuation

import (
	"context"
	"errors"
	"time"

	"wavebot/internal/message"
	"wavebot/internal/permission"
	"wavebot/internal/transport"
)

var (
	// ErrWrongReaction is returned by Consume when the follow-up reaction
	// does not match the entry's required emoji.
	ErrWrongReaction = errors.New("continuation: wrong reaction")
	// ErrNotFound is returned when no live entry exists for the message ID.
	ErrNotFound = errors.New("continuation: no entry for message")
)

// Followup is what a continuation callback receives when the awaited reply or
// reaction arrives.
type Followup struct {
	Msg    *message.Normalized
	Sender string
	Args   []string
	Emoji  string // set for reaction continuations
	Delete Handle // cancels the entry, same capability returned at registration
}

// Callback resumes the originating command.
type Callback func(ctx context.Context, f *Followup) error

// Handle deletes the entry. Calling it more than once, or after expiry, is a
// no-op.
type Handle func()

// Entry describes one registered continuation. The callback is invoked, never
// replaced; registry code copies the struct and callers keep no reference.
type Entry struct {
	Tier        permission.Tier
	CommandName string
	Callback    Callback
	TTL         time.Duration // 0 = registry default
	AutoDelete  bool

	// Reaction variant only.
	RequiredEmoji       string
	NotifyWrongReaction bool

	// Group metadata captured when the command ran, used for the tier check
	// on the follow-up without refetching.
	Group *transport.GroupMetadata
}
