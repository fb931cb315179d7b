package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Sent is one message recorded by the in-memory transport.
type Sent struct {
	Key     MessageKey
	ChatID  string
	Content Content
	Options *SendOptions
}

// Memory is an in-process Transport used by tests and local dry runs. It
// records sends, serves canned group metadata and can be scripted to fail
// metadata fetches a number of times.
type Memory struct {
	mu        sync.Mutex
	sent      []Sent
	reads     [][]MessageKey
	groups    map[string]*GroupMetadata
	groupErrs map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		groups:    make(map[string]*GroupMetadata),
		groupErrs: make(map[string]int),
	}
}

// SetGroup registers metadata served for a chat.
func (m *Memory) SetGroup(chatID string, meta *GroupMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[chatID] = meta
}

// FailGroupFetch makes the next n metadata fetches for chatID fail.
func (m *Memory) FailGroupFetch(chatID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupErrs[chatID] = n
}

// SentMessages returns a copy of all recorded sends.
func (m *Memory) SentMessages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastSent returns the most recent send, or nil.
func (m *Memory) LastSent() *Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	s := m.sent[len(m.sent)-1]
	return &s
}

// ReadCalls returns all ReadMessages invocations.
func (m *Memory) ReadCalls() [][]MessageKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]MessageKey, len(m.reads))
	copy(out, m.reads)
	return out
}

func (m *Memory) SendMessage(ctx context.Context, chatID string, content Content, opts *SendOptions) (*SentMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := MessageKey{ChatID: chatID, ID: uuid.NewString(), FromMe: true}
	m.sent = append(m.sent, Sent{Key: key, ChatID: chatID, Content: content, Options: opts})
	return &SentMessage{Key: key}, nil
}

func (m *Memory) GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.groupErrs[chatID]; n > 0 {
		m.groupErrs[chatID] = n - 1
		return nil, ErrUnavailable
	}
	meta, ok := m.groups[chatID]
	if !ok {
		return nil, ErrUnavailable
	}
	return meta, nil
}

func (m *Memory) ReadMessages(ctx context.Context, keys []MessageKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, keys)
	return nil
}
