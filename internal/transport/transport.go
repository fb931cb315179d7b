// Package transport defines the boundary to the external connection layer:
// the operations the bot consumes (sends, group metadata, read receipts) and
// the raw event frames the layer delivers. Pairing, encryption and socket
// lifecycle live on the other side of this boundary.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned when the connection to the messaging layer is
// not active. Processing of the current event stops; the next event starts fresh.
var ErrUnavailable = errors.New("transport: connection not open")

// MessageKey identifies a single message within a chat.
type MessageKey struct {
	ChatID      string `json:"chat_id"`
	ID          string `json:"id"`
	FromMe      bool   `json:"from_me"`
	Participant string `json:"participant,omitempty"`
}

// Content is the payload of an outgoing send. A non-nil Delete requests
// removal of the referenced message instead of posting text.
type Content struct {
	Text   string      `json:"text,omitempty"`
	Delete *MessageKey `json:"delete,omitempty"`
}

// SendOptions carries per-send modifiers.
type SendOptions struct {
	Quoted *MessageKey `json:"quoted,omitempty"`
}

// SentMessage is the reference returned for an outgoing message. Commands use
// its key to attach reply/reaction continuations.
type SentMessage struct {
	Key MessageKey `json:"key"`
}

// GroupParticipant is one member of a group.
type GroupParticipant struct {
	ID         string `json:"id"`
	Admin      bool   `json:"admin"`
	SuperAdmin bool   `json:"super_admin"`
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	Subject      string             `json:"subject"`
	Participants []GroupParticipant `json:"participants"`
}

// UnknownGroup is the fallback metadata used when fetching fails. Dispatch
// proceeds with it instead of aborting.
func UnknownGroup() *GroupMetadata {
	return &GroupMetadata{Subject: "Unknown Group", Participants: []GroupParticipant{}}
}

// EventKind tags a raw frame from the connection layer.
type EventKind string

const (
	EventMessage           EventKind = "message"
	EventGroupParticipants EventKind = "group-participants"
	EventCall              EventKind = "call"
	EventContacts          EventKind = "contacts"
	EventGroupInvite       EventKind = "group-invite"
	EventConnection        EventKind = "connection"
)

// RawEvent is one inbound frame. Payload stays opaque here; the normalizer
// owns its interpretation.
type RawEvent struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Transport is the outbound surface of the connection layer.
type Transport interface {
	SendMessage(ctx context.Context, chatID string, content Content, opts *SendOptions) (*SentMessage, error)
	GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error)
	ReadMessages(ctx context.Context, keys []MessageKey) error
}
