package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wavebot/internal/command"
	"wavebot/internal/permission"
)

type Help struct{}

func (c *Help) Name() string            { return "help" }
func (c *Help) Description() string     { return "List available commands" }
func (c *Help) Aliases() []string       { return []string{"menu"} }
func (c *Help) Tier() permission.Tier   { return permission.TierEveryone }
func (c *Help) Cooldown() time.Duration { return 5 * time.Second }

func (c *Help) Run(ctx context.Context, inv *command.Context) error {
	var b strings.Builder
	b.WriteString("📖 Available commands:\n\n")
	for _, cmd := range inv.Commands.All() {
		fmt.Fprintf(&b, "%s%s - %s", inv.Prefix, cmd.Name(), cmd.Description())
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			fmt.Fprintf(&b, " (also: %s)", strings.Join(aliases, ", "))
		}
		if tier := cmd.Tier(); tier > permission.TierEveryone {
			fmt.Fprintf(&b, " [%s]", tier.Describe())
		}
		b.WriteString("\n")
	}
	_, err := inv.Reply(ctx, b.String())
	return err
}
