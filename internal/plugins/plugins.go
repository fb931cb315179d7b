// Package plugins holds the built-in leaf commands and passive listeners.
// They consume the dispatch contract; none of them contain dispatch logic.
package plugins

import (
	"wavebot/internal/command"
	"wavebot/internal/event"
)

// Install registers the built-in commands and listeners.
func Install(commands *command.Registry, events *event.Registry) error {
	for _, c := range []command.Command{
		&Ping{},
		&Help{},
		&Prefix{},
		&Poll{},
		&Purge{},
	} {
		if err := commands.Register(c); err != nil {
			return err
		}
	}
	events.Register(&ActivityLog{})
	return nil
}
