package plugins

import (
	"context"
	"fmt"
	"time"

	"wavebot/internal/command"
	"wavebot/internal/continuation"
	"wavebot/internal/permission"
)

const confirmEmoji = "👍"

// Prefix shows or changes the command prefix. A change is confirmed through
// a reaction on the bot's message before anything is persisted; "-g" changes
// the global prefix and is restricted to bot admins.
type Prefix struct{}

func (c *Prefix) Name() string            { return "prefix" }
func (c *Prefix) Description() string     { return "Show or change the command prefix for this chat" }
func (c *Prefix) Aliases() []string       { return nil }
func (c *Prefix) Tier() permission.Tier   { return permission.TierEveryone }
func (c *Prefix) Cooldown() time.Duration { return 5 * time.Second }

func (c *Prefix) Run(ctx context.Context, inv *command.Context) error {
	chatID := inv.Msg.ChatID

	// The system line shows the bot-wide prefix (stored global override, else
	// the configured default), never the chat-local one.
	system := inv.DefaultPrefix
	if p, ok := inv.Store.GlobalPrefix(); ok {
		system = p
	}

	if len(inv.Args) == 0 {
		_, err := inv.Reply(ctx, fmt.Sprintf("🌐 System prefix: %s\n🛸 Current chat prefix: %s",
			system, inv.Prefix))
		return err
	}

	if inv.Args[0] == "reset" {
		if err := inv.Store.ResetThreadPrefix(chatID); err != nil {
			return err
		}
		_, err := inv.Reply(ctx, fmt.Sprintf("✅ Prefix for this chat reset to default: %s", system))
		return err
	}

	newPrefix := inv.Args[0]
	global := len(inv.Args) > 1 && inv.Args[1] == "-g"

	if global && !inv.Resolver.Allows(inv.Sender, inv.Group, permission.TierBotAdmin) {
		_, err := inv.Reply(ctx, "⚠️ Only bot admins can change the global prefix.")
		return err
	}

	scope := "this chat"
	if global {
		scope = "the whole bot"
	}
	sent, err := inv.Reply(ctx, fmt.Sprintf(
		"React with %s to confirm changing the prefix for %s to %q.", confirmEmoji, scope, newPrefix))
	if err != nil {
		return err
	}

	initiator := permission.Canonical(inv.Sender)
	store := inv.Store
	inv.Reactions.Register(sent.Key.ID, continuation.Entry{
		Tier:                permission.TierEveryone,
		CommandName:         c.Name(),
		TTL:                 time.Minute,
		AutoDelete:          true,
		RequiredEmoji:       confirmEmoji,
		NotifyWrongReaction: true,
		Group:               inv.Group,
		Callback: func(cctx context.Context, f *continuation.Followup) error {
			// Only the initiator may confirm.
			if permission.Canonical(f.Sender) != initiator {
				return nil
			}
			var err error
			if global {
				err = store.SetGlobalPrefix(newPrefix)
			} else {
				err = store.SetThreadPrefix(chatID, newPrefix)
			}
			if err != nil {
				return err
			}
			_, err = inv.Send(cctx, fmt.Sprintf("✅ Prefix for %s changed to: %s", scope, newPrefix))
			return err
		},
	})
	return nil
}
