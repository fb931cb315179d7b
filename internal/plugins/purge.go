package plugins

import (
	"context"
	"time"

	"wavebot/internal/command"
	"wavebot/internal/permission"
	"wavebot/internal/transport"
)

// Purge removes the quoted message from the chat. Bot admins only.
type Purge struct{}

func (c *Purge) Name() string            { return "purge" }
func (c *Purge) Description() string     { return "Delete the quoted message" }
func (c *Purge) Aliases() []string       { return []string{"del"} }
func (c *Purge) Tier() permission.Tier   { return permission.TierBotAdmin }
func (c *Purge) Cooldown() time.Duration { return 5 * time.Second }

func (c *Purge) Run(ctx context.Context, inv *command.Context) error {
	if inv.Msg.Quote == nil {
		_, err := inv.Reply(ctx, "❌ Quote the message you want removed.")
		return err
	}

	key := transport.MessageKey{
		ChatID:      inv.Msg.ChatID,
		ID:          inv.Msg.Quote.MessageID,
		Participant: inv.Msg.Quote.SenderID,
	}
	_, err := inv.Transport.SendMessage(ctx, inv.Msg.ChatID, transport.Content{Delete: &key}, nil)
	return err
}
