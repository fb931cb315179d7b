// Package dispatch orchestrates inbound message handling: classification,
// continuation lookup, permission and cooldown gates, command execution, and
// passive event notification. Every failure is isolated to the event that
// caused it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"wavebot/internal/command"
	"wavebot/internal/continuation"
	"wavebot/internal/event"
	"wavebot/internal/message"
	"wavebot/internal/permission"
	"wavebot/internal/storage"
	"wavebot/internal/transport"
	"wavebot/pkg/retry"
)

// Options are the dispatcher's tunables.
type Options struct {
	Prefix                  string
	BotID                   string
	AutoRead                bool
	DeleteCommandMessages   bool
	EventsAfterContinuation bool // run passive events even when a continuation consumed the message
	MetadataRetry           retry.Config
}

// Dispatcher owns the per-message pipeline. All registries are injected so
// tests and multiple bot instances get isolated state.
type Dispatcher struct {
	tr        transport.Transport
	store     *storage.Storage
	resolver  *permission.Resolver
	commands  *command.Registry
	cooldowns *command.CooldownLedger
	events    *event.Registry
	replies   *continuation.Registry
	reactions *continuation.Registry
	opts      Options
}

func New(
	tr transport.Transport,
	store *storage.Storage,
	resolver *permission.Resolver,
	commands *command.Registry,
	cooldowns *command.CooldownLedger,
	events *event.Registry,
	replies *continuation.Registry,
	reactions *continuation.Registry,
	opts Options,
) *Dispatcher {
	if opts.MetadataRetry.MaxAttempts == 0 {
		opts.MetadataRetry = retry.Default()
	}
	return &Dispatcher{
		tr:        tr,
		store:     store,
		resolver:  resolver,
		commands:  commands,
		cooldowns: cooldowns,
		events:    events,
		replies:   replies,
		reactions: reactions,
		opts:      opts,
	}
}

// HandleRaw processes one raw message event end to end. It never panics and
// never returns an error: a bad event is logged and dropped.
func (d *Dispatcher) HandleRaw(ctx context.Context, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("dispatch panicked; event dropped")
		}
	}()

	m := message.Normalize(payload, d.opts.BotID)
	if m == nil {
		log.Debug().Msg("event not normalizable; dropped")
		return
	}

	if d.opts.AutoRead && !m.FromSelf {
		if err := d.tr.ReadMessages(ctx, []transport.MessageKey{m.Key}); err != nil {
			log.Warn().Err(err).Msg("read receipt failed")
		}
	}

	d.Dispatch(ctx, m)
}

// Dispatch runs the pipeline for an already-normalized message.
func (d *Dispatcher) Dispatch(ctx context.Context, m *message.Normalized) {
	var meta *transport.GroupMetadata
	if m.IsGroup() {
		meta = d.groupMetadata(ctx, m.ChatID)
	}

	inv := &command.Context{
		Transport:     d.tr,
		Store:         d.store,
		Resolver:      d.resolver,
		Commands:      d.commands,
		Replies:       d.replies,
		Reactions:     d.reactions,
		Msg:           m,
		Sender:        m.SenderID,
		BotID:         d.opts.BotID,
		Prefix:        d.store.EffectivePrefix(m.ChatID, d.opts.Prefix),
		DefaultPrefix: d.opts.Prefix,
		Group:         meta,
	}

	if d.tryContinuations(ctx, inv) {
		if d.opts.EventsAfterContinuation {
			d.events.NotifyAll(ctx, inv)
		}
		return
	}

	d.tryCommand(ctx, inv)
	d.events.NotifyAll(ctx, inv)
}

// groupMetadata fetches group metadata with bounded backoff, degrading to
// the unknown-group fallback so the pipeline never aborts on metadata.
func (d *Dispatcher) groupMetadata(ctx context.Context, chatID string) *transport.GroupMetadata {
	var meta *transport.GroupMetadata
	err := retry.Do(ctx, func() error {
		got, err := d.tr.GroupMetadata(ctx, chatID)
		if err != nil {
			return err
		}
		meta = got
		return nil
	}, d.opts.MetadataRetry)
	if err != nil {
		log.Warn().Err(err).Str("chat", chatID).Msg("group metadata unavailable, using fallback")
		return transport.UnknownGroup()
	}
	return meta
}

// tryContinuations checks the reaction registry first, then the reply
// registry. When both signals are present on one event the reaction check
// wins: if it matches an entry, no reply lookup happens for this message.
// Returns true when the message was consumed (including handled-but-rejected
// follow-ups).
func (d *Dispatcher) tryContinuations(ctx context.Context, inv *command.Context) bool {
	m := inv.Msg
	if m.Reaction != nil && m.Reaction.TargetMessageID != "" {
		if d.consumeReaction(ctx, inv) {
			return true
		}
	}
	if m.Quote != nil && m.Quote.MessageID != "" {
		if d.consumeReply(ctx, inv) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) consumeReaction(ctx context.Context, inv *command.Context) (consumed bool) {
	defer func() {
		// A failure inside continuation handling falls through to the
		// command check instead of aborting the event.
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("reaction continuation panicked")
			consumed = false
		}
	}()

	m := inv.Msg
	target := m.Reaction.TargetMessageID
	entry, ok := d.reactions.Lookup(target)
	if !ok {
		return false
	}

	if !d.allowsContinuation(inv, entry) {
		d.notify(ctx, inv, "⚠️ You don't have permission for this action. Required: "+entry.Tier.Describe()+".")
		return true
	}

	f := &continuation.Followup{
		Msg:    m,
		Sender: inv.Sender,
		Args:   strings.Fields(m.Body),
		Emoji:  m.Reaction.Emoji,
	}

	err := d.reactions.Consume(ctx, target, f)
	switch {
	case errors.Is(err, continuation.ErrNotFound):
		return false // expired between lookup and consume
	case errors.Is(err, continuation.ErrWrongReaction):
		if entry.NotifyWrongReaction {
			d.notify(ctx, inv, fmt.Sprintf("⚠️ Please use %s to respond.", entry.RequiredEmoji))
		}
		return true
	case err != nil:
		d.notify(ctx, inv, "❌ Something went wrong handling your reaction.")
		return true
	}

	if entry.Callback == nil && entry.CommandName != "" {
		d.delegateReaction(ctx, inv, entry, f)
	}
	return true
}

// delegateReaction routes a callback-less continuation to the originating
// command's reaction handler.
func (d *Dispatcher) delegateReaction(ctx context.Context, inv *command.Context, entry continuation.Entry, f *continuation.Followup) {
	c, ok := d.commands.Resolve(entry.CommandName)
	if !ok {
		log.Warn().Str("command", entry.CommandName).Msg("reaction continuation names unknown command")
		return
	}
	rh, ok := c.(command.ReactionHandler)
	if !ok {
		log.Warn().Str("command", entry.CommandName).Msg("command has no reaction handler")
		return
	}
	if err := rh.HandleReaction(ctx, inv, f); err != nil {
		log.Error().Err(err).Str("command", entry.CommandName).Msg("reaction handler failed")
		d.notify(ctx, inv, "❌ Something went wrong handling your reaction.")
	}
}

func (d *Dispatcher) consumeReply(ctx context.Context, inv *command.Context) (consumed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("reply continuation panicked")
			consumed = false
		}
	}()

	m := inv.Msg
	target := m.Quote.MessageID
	entry, ok := d.replies.Lookup(target)
	if !ok {
		return false
	}

	if !d.allowsContinuation(inv, entry) {
		d.notify(ctx, inv, "⚠️ You don't have permission for this action. Required: "+entry.Tier.Describe()+".")
		return true
	}

	f := &continuation.Followup{
		Msg:    m,
		Sender: inv.Sender,
		Args:   strings.Fields(m.Body),
	}

	err := d.replies.Consume(ctx, target, f)
	switch {
	case errors.Is(err, continuation.ErrNotFound):
		return false
	case err != nil:
		d.notify(ctx, inv, "❌ Something went wrong handling your reply.")
		return true
	}
	return true
}

// allowsContinuation checks the entry's required tier against the resolver,
// preferring the group metadata captured at registration time.
func (d *Dispatcher) allowsContinuation(inv *command.Context, entry continuation.Entry) bool {
	meta := entry.Group
	if meta == nil {
		meta = inv.Group
	}
	return d.resolver.Allows(inv.Sender, meta, entry.Tier)
}

// tryCommand runs the prefix/command leg of the pipeline.
func (d *Dispatcher) tryCommand(ctx context.Context, inv *command.Context) {
	m := inv.Msg
	body := strings.TrimSpace(m.Body)
	if body == "" || !strings.HasPrefix(body, inv.Prefix) {
		return
	}

	rest := strings.TrimSpace(strings.TrimPrefix(body, inv.Prefix))
	if rest == "" {
		return
	}
	tokens := strings.Fields(rest)
	name := strings.ToLower(tokens[0])
	inv.Args = tokens[1:]

	c, ok := d.commands.Resolve(name)
	if !ok {
		log.Info().Str("command", name).Str("sender", inv.Sender).Msg("command not found")
		d.notify(ctx, inv, fmt.Sprintf("Command %q not found. Try %shelp for a list of commands.", name, inv.Prefix))
		return
	}

	if !m.FromSelf && !d.resolver.CanUseBot(inv.Sender) {
		log.Info().Str("command", c.Name()).Str("sender", inv.Sender).Msg("use denied")
		d.notify(ctx, inv, "You don't have permission to use bot commands.")
		return
	}

	if !d.resolver.Allows(inv.Sender, inv.Group, c.Tier()) {
		log.Info().Str("command", c.Name()).Str("sender", inv.Sender).Msg("permission denied")
		d.notify(ctx, inv, fmt.Sprintf("You don't have permission to use %q. Required: %s.", c.Name(), c.Tier().Describe()))
		return
	}

	if remaining, ok := d.cooldowns.Reserve(c.Name(), inv.Sender, c.Cooldown()); !ok {
		secs := int(remaining.Seconds())
		if secs < 1 {
			secs = 1
		}
		log.Info().Str("command", c.Name()).Str("sender", inv.Sender).Msg("cooldown active")
		d.notify(ctx, inv, fmt.Sprintf("You're using %q too fast. Wait %ds.", c.Name(), secs))
		return
	}

	log.Info().Str("command", c.Name()).Str("sender", inv.Sender).
		Str("chat", m.ChatID).Msg("executing command")

	if err := runCommand(ctx, c, inv); err != nil {
		log.Error().Err(err).Str("command", c.Name()).Str("sender", inv.Sender).
			Msg("command execution failed")
		d.notify(ctx, inv, fmt.Sprintf("❌ Something went wrong running %q.", c.Name()))
	}

	if d.opts.DeleteCommandMessages && !m.FromSelf {
		if _, err := d.tr.SendMessage(ctx, m.ChatID, transport.Content{Delete: &m.Key}, nil); err != nil {
			log.Warn().Err(err).Msg("failed to delete command message")
		}
	}
}

// runCommand invokes the handler, converting a panic into an error so one
// command can never take down the dispatch loop.
func runCommand(ctx context.Context, c command.Command, inv *command.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return c.Run(ctx, inv)
}

func (d *Dispatcher) notify(ctx context.Context, inv *command.Context, text string) {
	if _, err := inv.Reply(ctx, text); err != nil {
		log.Warn().Err(err).Str("chat", inv.Msg.ChatID).Msg("failed to send notice")
	}
}
