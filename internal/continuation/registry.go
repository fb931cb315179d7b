package continuation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type state struct {
	entry Entry
	timer *time.Timer
}

// Registry maps target message IDs to continuation entries of one kind
// (reply or reaction). Entries expire on a timer, can be cancelled through
// their handle, and are removed atomically on auto-delete consume so a race
// between two follow-ups resolves to exactly one execution.
type Registry struct {
	kind       string
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]*state
}

// NewRegistry creates a registry. kind appears in logs ("reply"/"reaction");
// defaultTTL bounds entries that do not set their own.
func NewRegistry(kind string, defaultTTL time.Duration) *Registry {
	return &Registry{
		kind:       kind,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*state),
	}
}

// Register stores an entry for targetMessageID and starts its expiry timer.
// A previous entry for the same ID is replaced, its timer stopped. The
// returned handle deletes the entry; double deletion is a no-op. Timer and
// handle are bound to this registration, so neither can remove a later
// entry registered under the same ID.
func (r *Registry) Register(targetMessageID string, e Entry) Handle {
	ttl := e.TTL
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	r.mu.Lock()
	if prev, ok := r.entries[targetMessageID]; ok {
		prev.timer.Stop()
	}
	st := &state{entry: e}
	st.timer = time.AfterFunc(ttl, func() {
		if r.remove(targetMessageID, st) {
			log.Debug().Str("kind", r.kind).Str("msg_id", targetMessageID).
				Dur("ttl", ttl).Msg("continuation expired")
		}
	})
	r.entries[targetMessageID] = st
	r.mu.Unlock()

	log.Debug().Str("kind", r.kind).Str("msg_id", targetMessageID).
		Str("command", e.CommandName).Msg("continuation registered")

	return func() { r.remove(targetMessageID, st) }
}

// Lookup returns a copy of the entry for targetMessageID without consuming it.
func (r *Registry) Lookup(targetMessageID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.entries[targetMessageID]
	if !ok {
		return Entry{}, false
	}
	return st.entry, true
}

// Delete removes the entry and stops its timer. Returns false when no entry
// was present, which is not an error.
func (r *Registry) Delete(targetMessageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.entries[targetMessageID]
	if !ok {
		return false
	}
	st.timer.Stop()
	delete(r.entries, targetMessageID)
	return true
}

// remove deletes the entry only when it still is st. A fired timer or stale
// handle from a replaced registration finds a different state and leaves the
// current entry alone.
func (r *Registry) remove(targetMessageID string, st *state) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[targetMessageID]
	if !ok || cur != st {
		return false
	}
	st.timer.Stop()
	delete(r.entries, targetMessageID)
	return true
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Consume runs the stored callback for targetMessageID. The required-emoji
// check happens before anything else; on mismatch the entry stays and
// ErrWrongReaction is returned. Auto-delete entries are claimed atomically
// under the lock, so concurrent follow-ups run the callback exactly once;
// the claim (and therefore the deletion) holds whether or not the callback
// fails. Non-auto-delete entries may serve many follow-ups concurrently.
func (r *Registry) Consume(ctx context.Context, targetMessageID string, f *Followup) error {
	r.mu.Lock()
	st, ok := r.entries[targetMessageID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	e := st.entry

	if e.RequiredEmoji != "" && f.Emoji != e.RequiredEmoji {
		r.mu.Unlock()
		return ErrWrongReaction
	}

	if e.AutoDelete {
		st.timer.Stop()
		delete(r.entries, targetMessageID)
	}
	r.mu.Unlock()

	if f.Delete == nil {
		f.Delete = func() { r.remove(targetMessageID, st) }
	}

	if e.Callback == nil {
		return nil
	}
	if err := e.Callback(ctx, f); err != nil {
		log.Error().Err(err).Str("kind", r.kind).Str("command", e.CommandName).
			Str("msg_id", targetMessageID).Msg("continuation callback failed")
		return err
	}
	return nil
}
