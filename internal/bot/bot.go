// Package bot runs the event loop that feeds the dispatcher from the
// transport's raw event stream. Secondary event kinds are logged here;
// message events go through the full dispatch pipeline.
package bot

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"wavebot/internal/dispatch"
	"wavebot/internal/transport"
)

// Bot couples the event stream to the dispatcher.
type Bot struct {
	events     <-chan transport.RawEvent
	dispatcher *dispatch.Dispatcher
}

func New(events <-chan transport.RawEvent, dispatcher *dispatch.Dispatcher) *Bot {
	return &Bot{events: events, dispatcher: dispatcher}
}

// Run consumes events until the channel closes or ctx is done. Each message
// event is handled on its own goroutine so a slow command cannot stall the
// stream.
func (b *Bot) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.events:
			if !ok {
				log.Info().Msg("event stream closed")
				return nil
			}
			b.handle(ctx, evt)
		}
	}
}

func (b *Bot) handle(ctx context.Context, evt transport.RawEvent) {
	switch evt.Kind {
	case transport.EventMessage:
		go b.dispatcher.HandleRaw(ctx, evt.Payload)

	case transport.EventConnection:
		state := gjson.GetBytes(evt.Payload, "state").String()
		log.Info().Str("state", state).Msg("connection state changed")

	case transport.EventGroupParticipants:
		p := gjson.ParseBytes(evt.Payload)
		log.Info().
			Str("chat", p.Get("id").String()).
			Str("action", p.Get("action").String()).
			Int("participants", int(p.Get("participants.#").Int())).
			Msg("group participants changed")

	case transport.EventCall:
		p := gjson.ParseBytes(evt.Payload)
		log.Info().
			Str("from", p.Get("from").String()).
			Str("status", p.Get("status").String()).
			Msg("call event")

	case transport.EventContacts:
		count := gjson.GetBytes(evt.Payload, "#").Int()
		log.Debug().Int64("count", count).Msg("contacts update")

	case transport.EventGroupInvite:
		p := gjson.ParseBytes(evt.Payload)
		log.Info().
			Str("chat", p.Get("id").String()).
			Str("inviter", p.Get("inviter").String()).
			Msg("group invite")

	default:
		log.Debug().Str("kind", string(evt.Kind)).Msg("unhandled event kind")
	}
}
