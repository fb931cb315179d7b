package plugins

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wavebot/internal/command"
	"wavebot/internal/continuation"
	"wavebot/internal/permission"
)

// pollState is the vote tally owned by a poll's continuation entry. Votes
// arrive from concurrent follow-ups, so access goes through the mutex.
type pollState struct {
	mu       sync.Mutex
	question string
	votes    map[string]string // voter name -> choice
}

func (p *pollState) cast(voter, choice string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes[voter] = choice
}

func (p *pollState) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := map[string][]string{"yes": nil, "no": nil, "maybe": nil}
	for voter, choice := range p.votes {
		counts[choice] = append(counts[choice], voter)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 POLL: %s\n\n", p.question)
	for _, opt := range []struct{ label, key string }{
		{"👍 Yes", "yes"}, {"👎 No", "no"}, {"🤔 Maybe", "maybe"},
	} {
		voters := counts[opt.key]
		sort.Strings(voters)
		fmt.Fprintf(&b, "%s: %d vote(s)\n", opt.label, len(voters))
		for _, v := range voters {
			fmt.Fprintf(&b, "  - %s\n", v)
		}
	}
	b.WriteString("\nReply to this message with yes, no or maybe to vote. The creator can reply close to end the poll.")
	return b.String()
}

// Poll creates a yes/no/maybe poll collected through reply continuations.
type Poll struct{}

func (c *Poll) Name() string            { return "poll" }
func (c *Poll) Description() string     { return "Create a yes/no/maybe poll" }
func (c *Poll) Aliases() []string       { return []string{"vote", "survey"} }
func (c *Poll) Tier() permission.Tier   { return permission.TierGroupAdmin }
func (c *Poll) Cooldown() time.Duration { return 10 * time.Second }

func (c *Poll) Run(ctx context.Context, inv *command.Context) error {
	question := strings.Join(inv.Args, " ")
	if question == "" {
		_, err := inv.Reply(ctx, "❌ Please provide a question for the poll.")
		return err
	}

	state := &pollState{question: question, votes: make(map[string]string)}

	sent, err := inv.Send(ctx, state.render())
	if err != nil {
		return err
	}

	creator := permission.Canonical(inv.Sender)
	inv.Replies.Register(sent.Key.ID, continuation.Entry{
		Tier:        permission.TierEveryone,
		CommandName: c.Name(),
		TTL:         10 * time.Minute,
		AutoDelete:  false, // many voters share the entry
		Group:       inv.Group,
		Callback: func(cctx context.Context, f *continuation.Followup) error {
			if len(f.Args) == 0 {
				return nil
			}
			word := strings.ToLower(f.Args[0])

			if word == "close" && permission.Canonical(f.Sender) == creator {
				f.Delete()
				_, err := inv.Send(cctx, "🔒 Poll closed.\n\n"+state.render())
				return err
			}

			var choice string
			switch word {
			case "yes", "y":
				choice = "yes"
			case "no", "n":
				choice = "no"
			case "maybe", "m":
				choice = "maybe"
			default:
				return nil
			}

			voter := f.Msg.PushName
			if voter == "" {
				voter = permission.Canonical(f.Sender)
			}
			state.cast(voter, choice)

			_, err := inv.Send(cctx, state.render())
			return err
		},
	})
	return nil
}
