package plugins

import (
	"context"

	"github.com/rs/zerolog/log"

	"wavebot/internal/command"
)

// ActivityLog records every accepted message: chat kind, sender, body
// preview and the attachment/quote/reaction flags.
type ActivityLog struct{}

func (l *ActivityLog) Name() string { return "activity-log" }

func (l *ActivityLog) Handle(ctx context.Context, inv *command.Context) error {
	m := inv.Msg

	preview := m.Body
	if len(preview) > 60 {
		preview = preview[:57] + "..."
	}

	evt := log.Info().
		Str("chat", m.ChatID).
		Str("kind", m.Kind.String()).
		Str("sender", m.SenderID).
		Bool("from_self", m.FromSelf)
	if m.PushName != "" {
		evt = evt.Str("name", m.PushName)
	}
	if preview != "" {
		evt = evt.Str("text", preview)
	}
	if m.Attachment.Present {
		evt = evt.Str("attachment", m.Attachment.Kind).Bool("quoted_attachment", m.Attachment.Quoted)
	}
	if m.Quote != nil {
		evt = evt.Str("reply_to", m.Quote.MessageID)
	}
	if m.Reaction != nil {
		evt = evt.Str("reaction", m.Reaction.Emoji).Str("reaction_target", m.Reaction.TargetMessageID)
	}
	evt.Msg("message")
	return nil
}
