package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeServer is a scripted peer for Bridge tests: it upgrades one
// connection, forwards frames to the test and lets it push frames back.
type bridgeServer struct {
	srv      *httptest.Server
	inbound  chan frame      // frames the client wrote
	outbound chan frame      // frames the test wants delivered to the client
	authed   chan string     // Authorization header values seen
	done     chan struct{}
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	bs := &bridgeServer{
		inbound:  make(chan frame, 16),
		outbound: make(chan frame, 16),
		authed:   make(chan string, 4),
		done:     make(chan struct{}),
	}

	upgrader := websocket.Upgrader{}
	bs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs.authed <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		go func() {
			for {
				select {
				case <-bs.done:
					return
				case f := <-bs.outbound:
					if err := conn.WriteJSON(f); err != nil {
						return
					}
				}
			}
		}()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			bs.inbound <- f
		}
	}))
	t.Cleanup(func() {
		close(bs.done)
		bs.srv.Close()
	})
	return bs
}

func (bs *bridgeServer) url() string {
	return "ws" + strings.TrimPrefix(bs.srv.URL, "http")
}

func waitOpen(t *testing.T, b *Bridge) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !b.Open() {
		if time.Now().After(deadline) {
			t.Fatal("bridge never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startBridge(t *testing.T, bs *bridgeServer, token string) *Bridge {
	t.Helper()
	b := NewBridge(bs.url(), token, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	waitOpen(t, b)
	return b
}

func TestBridgeAuthHeader(t *testing.T) {
	bs := newBridgeServer(t)
	startBridge(t, bs, "sekrit")

	select {
	case got := <-bs.authed:
		if got != "Bearer sekrit" {
			t.Errorf("Authorization = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no connection arrived")
	}
}

func TestBridgeDeliversEvents(t *testing.T) {
	bs := newBridgeServer(t)
	b := startBridge(t, bs, "")

	// Run emits a connection-open event first.
	select {
	case evt := <-b.Events():
		if evt.Kind != EventConnection {
			t.Fatalf("first event kind = %q", evt.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no connection event")
	}

	payload, _ := json.Marshal(map[string]string{"hello": "world"})
	bs.outbound <- frame{Kind: EventMessage, Payload: payload}

	select {
	case evt := <-b.Events():
		if evt.Kind != EventMessage {
			t.Fatalf("event kind = %q", evt.Kind)
		}
		if string(evt.Payload) != string(payload) {
			t.Errorf("payload = %s", evt.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message event never arrived")
	}
}

func TestBridgeSendMessage(t *testing.T) {
	bs := newBridgeServer(t)
	b := startBridge(t, bs, "")

	sent, err := b.SendMessage(context.Background(), "c1", Content{Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent.Key.ID == "" || sent.Key.ChatID != "c1" || !sent.Key.FromMe {
		t.Errorf("sent key = %+v", sent.Key)
	}

	select {
	case f := <-bs.inbound:
		if f.Type != "send" || f.ChatID != "c1" || f.Content == nil || f.Content.Text != "hi" {
			t.Errorf("frame = %+v", f)
		}
		if f.ID != sent.Key.ID {
			t.Errorf("frame ID %q != minted key %q", f.ID, sent.Key.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send frame never arrived")
	}
}

func TestBridgeGroupMetadataRoundTrip(t *testing.T) {
	bs := newBridgeServer(t)
	b := startBridge(t, bs, "")

	go func() {
		f := <-bs.inbound
		if f.Type != "group_metadata" {
			return
		}
		payload, _ := json.Marshal(GroupMetadata{
			Subject:      "Crew",
			Participants: []GroupParticipant{{ID: "100@s.whatsapp.net", Admin: true}},
		})
		bs.outbound <- frame{Type: "rpc", ID: f.ID, Payload: payload}
	}()

	meta, err := b.GroupMetadata(context.Background(), "g1@g.us")
	if err != nil {
		t.Fatalf("GroupMetadata: %v", err)
	}
	if meta.Subject != "Crew" || len(meta.Participants) != 1 || !meta.Participants[0].Admin {
		t.Errorf("meta = %+v", meta)
	}
}

func TestBridgeGroupMetadataError(t *testing.T) {
	bs := newBridgeServer(t)
	b := startBridge(t, bs, "")

	go func() {
		f := <-bs.inbound
		bs.outbound <- frame{Type: "rpc", ID: f.ID, Error: "not a participant"}
	}()

	if _, err := b.GroupMetadata(context.Background(), "g1@g.us"); err == nil {
		t.Fatal("expected the peer's error to surface")
	}
}

func TestBridgeClosedTransport(t *testing.T) {
	b := NewBridge("ws://127.0.0.1:1/ws", "", 5)
	ctx := context.Background()

	if _, err := b.SendMessage(ctx, "c1", Content{Text: "hi"}, nil); err != ErrUnavailable {
		t.Errorf("SendMessage = %v", err)
	}
	if _, err := b.GroupMetadata(ctx, "g1"); err != ErrUnavailable {
		t.Errorf("GroupMetadata = %v", err)
	}
	if err := b.ReadMessages(ctx, []MessageKey{{ID: "x"}}); err != ErrUnavailable {
		t.Errorf("ReadMessages = %v", err)
	}
	// An empty ack is a no-op even without a connection.
	if err := b.ReadMessages(ctx, nil); err != nil {
		t.Errorf("empty ReadMessages = %v", err)
	}
}

func TestDeliverDropsOldestWhenFull(t *testing.T) {
	b := NewBridge("ws://unused", "", 5)

	for i := 0; i < bridgeEventBuffer; i++ {
		b.deliver(RawEvent{Kind: EventContacts})
	}
	b.deliver(RawEvent{Kind: EventMessage})

	drained := 0
	var sawMessage bool
	for {
		select {
		case evt := <-b.events:
			drained++
			if evt.Kind == EventMessage {
				sawMessage = true
			}
			continue
		default:
		}
		break
	}
	if drained != bridgeEventBuffer {
		t.Errorf("drained %d events, want %d", drained, bridgeEventBuffer)
	}
	if !sawMessage {
		t.Error("the newest event must survive the overflow")
	}
}
