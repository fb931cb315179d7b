// Package message turns raw transport events into the canonical message view
// the dispatcher works with. The view is built once per event and never
// mutated afterwards.
package message

import (
	"time"

	"wavebot/internal/transport"
)

// ChatKind classifies where a message originated. Exactly one kind applies.
type ChatKind int

const (
	ChatPrivate ChatKind = iota
	ChatGroup
	ChatChannel
)

func (k ChatKind) String() string {
	switch k {
	case ChatGroup:
		return "group"
	case ChatChannel:
		return "channel"
	default:
		return "private"
	}
}

// Attachment describes media carried by the message, directly or inside the
// quoted message.
type Attachment struct {
	Present bool
	Kind    string
	Quoted  bool
}

// Quote is the reply linkage to a prior message.
type Quote struct {
	SenderID  string
	Text      string
	MessageID string
}

// Reaction is an emoji reaction targeting a prior message.
type Reaction struct {
	Emoji           string
	TargetMessageID string
}

// Normalized is the canonical view of one inbound message.
type Normalized struct {
	Key         transport.MessageKey
	ChatID      string
	SenderID    string
	PushName    string
	FromSelf    bool
	Kind        ChatKind
	Body        string // empty when no text could be extracted
	ContentKind string // opaque transport tag, e.g. "imageMessage"
	Attachment  Attachment
	Quote       *Quote
	Reaction    *Reaction
	Timestamp   time.Time
}

func (n *Normalized) IsGroup() bool   { return n.Kind == ChatGroup }
func (n *Normalized) IsChannel() bool { return n.Kind == ChatChannel }
func (n *Normalized) IsPrivate() bool { return n.Kind == ChatPrivate }
