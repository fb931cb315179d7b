// Package event holds passive listeners that observe every accepted message
// regardless of the command/continuation outcome.
package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"wavebot/internal/command"
)

// Listener runs on every accepted message.
type Listener interface {
	Name() string
	Handle(ctx context.Context, inv *command.Context) error
}

// Registry fans a dispatch context out to all listeners. One listener
// failing never prevents the others from running.
type Registry struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// NotifyAll invokes every listener, catching panics and reporting each
// failure individually.
func (r *Registry) NotifyAll(ctx context.Context, inv *command.Context) {
	r.mu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Str("listener", l.Name()).
						Msg("event listener panicked")
				}
			}()
			if err := l.Handle(ctx, inv); err != nil {
				log.Error().Err(err).Str("listener", l.Name()).Msg("event listener failed")
			}
		}()
	}
}
