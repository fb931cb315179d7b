package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	bridgeEventBuffer = 128
	rpcTimeout        = 15 * time.Second
	reconnectMin      = time.Second
	reconnectMax      = 30 * time.Second
)

// frame is the wire format spoken with the connection layer. Inbound frames
// reuse RawEvent kinds; outbound frames carry a type plus a correlation ID for
// request/response pairs.
type frame struct {
	Kind    EventKind       `json:"kind,omitempty"`
	Type    string          `json:"type,omitempty"`
	ID      string          `json:"id,omitempty"`
	ChatID  string          `json:"chat_id,omitempty"`
	Content *Content        `json:"content,omitempty"`
	Options *SendOptions    `json:"options,omitempty"`
	Keys    []MessageKey    `json:"keys,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Bridge is a websocket client to the connection layer. It delivers raw
// inbound events on Events() and implements Transport for the outbound
// direction. Sends are rate limited so a burst of replies cannot flood the
// session.
type Bridge struct {
	url     string
	token   string
	limiter *rate.Limiter
	events  chan RawEvent

	mu      sync.Mutex
	conn    *websocket.Conn
	open    bool
	pending map[string]chan frame
}

// NewBridge creates a bridge client. sendRate is outgoing messages per second.
func NewBridge(url, token string, sendRate float64) *Bridge {
	if sendRate <= 0 {
		sendRate = 5
	}
	return &Bridge{
		url:     url,
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 1),
		events:  make(chan RawEvent, bridgeEventBuffer),
		pending: make(map[string]chan frame),
	}
}

// Events returns the inbound event stream. Closed when Run exits.
func (b *Bridge) Events() <-chan RawEvent {
	return b.events
}

// Open reports whether the socket is currently connected.
func (b *Bridge) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Run connects and keeps reading until ctx is done, reconnecting with
// doubling delay after each drop.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.events)

	delay := reconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := b.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("url", b.url).Dur("retry_in", delay).Msg("bridge connect failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}
		delay = reconnectMin

		b.setConn(conn)
		b.emitConnectionState("open")
		log.Info().Str("url", b.url).Msg("bridge connected")

		err = b.readLoop(ctx, conn)
		b.setConn(nil)
		b.emitConnectionState("closed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("bridge connection lost")
	}
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if b.token != "" {
		header.Set("Authorization", "Bearer "+b.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, header)
	return conn, err
}

func (b *Bridge) setConn(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && conn == nil {
		_ = b.conn.Close()
	}
	b.conn = conn
	b.open = conn != nil
	if conn == nil {
		for id, ch := range b.pending {
			close(ch)
			delete(b.pending, id)
		}
	}
}

func (b *Bridge) emitConnectionState(state string) {
	payload, _ := json.Marshal(map[string]string{"state": state})
	b.deliver(RawEvent{Kind: EventConnection, Payload: payload})
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}

		if f.Type == "rpc" {
			b.mu.Lock()
			ch, ok := b.pending[f.ID]
			if ok {
				delete(b.pending, f.ID)
			}
			b.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}

		if f.Kind == "" {
			log.Debug().Msg("bridge: frame without kind dropped")
			continue
		}
		b.deliver(RawEvent{Kind: f.Kind, Payload: f.Payload})

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// deliver pushes an event, dropping the oldest one when the buffer is full so
// the read loop never stalls behind a slow consumer.
func (b *Bridge) deliver(evt RawEvent) {
	select {
	case b.events <- evt:
	default:
		select {
		case <-b.events:
		default:
		}
		select {
		case b.events <- evt:
		default:
		}
	}
}

func (b *Bridge) write(f frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrUnavailable
	}
	return b.conn.WriteJSON(f)
}

// SendMessage writes a send frame. The message ID is minted locally so the
// caller can register continuations against it immediately.
func (b *Bridge) SendMessage(ctx context.Context, chatID string, content Content, opts *SendOptions) (*SentMessage, error) {
	if !b.Open() {
		return nil, ErrUnavailable
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := b.write(frame{Type: "send", ID: id, ChatID: chatID, Content: &content, Options: opts}); err != nil {
		return nil, err
	}
	return &SentMessage{Key: MessageKey{ChatID: chatID, ID: id, FromMe: true}}, nil
}

// GroupMetadata performs a request/response round trip over the socket.
func (b *Bridge) GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error) {
	if !b.Open() {
		return nil, ErrUnavailable
	}

	id := uuid.NewString()
	ch := make(chan frame, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.write(frame{Type: "group_metadata", ID: id, ChatID: chatID}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(rpcTimeout):
		return nil, fmt.Errorf("group metadata for %s: timeout", chatID)
	case f, ok := <-ch:
		if !ok {
			return nil, ErrUnavailable
		}
		if f.Error != "" {
			return nil, fmt.Errorf("group metadata for %s: %s", chatID, f.Error)
		}
		var meta GroupMetadata
		if err := json.Unmarshal(f.Payload, &meta); err != nil {
			return nil, fmt.Errorf("group metadata for %s: %w", chatID, err)
		}
		return &meta, nil
	}
}

// ReadMessages acks the given messages as read.
func (b *Bridge) ReadMessages(ctx context.Context, keys []MessageKey) error {
	if len(keys) == 0 {
		return nil
	}
	if !b.Open() {
		return ErrUnavailable
	}
	return b.write(frame{Type: "read", Keys: keys})
}
