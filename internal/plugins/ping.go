package plugins

import (
	"context"
	"time"

	"wavebot/internal/command"
	"wavebot/internal/permission"
)

type Ping struct{}

func (c *Ping) Name() string              { return "ping" }
func (c *Ping) Description() string       { return "Check that the bot is alive" }
func (c *Ping) Aliases() []string         { return nil }
func (c *Ping) Tier() permission.Tier     { return permission.TierEveryone }
func (c *Ping) Cooldown() time.Duration   { return 3 * time.Second }

func (c *Ping) Run(ctx context.Context, inv *command.Context) error {
	_, err := inv.Reply(ctx, "🏓 Pong!")
	return err
}
