package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDuplicateName is returned by RegisterExclusive when the name or one
	// of the aliases is already taken.
	ErrDuplicateName = errors.New("command: name already registered")
	// ErrInvalidCommand is returned for a command with no name.
	ErrInvalidCommand = errors.New("command: missing name")
)

// Registry stores installable commands by name with alias resolution. All
// lookups are case-insensitive. Safe for concurrent use; commands can be
// installed and uninstalled at runtime.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Command
	aliases map[string]string // alias -> command name
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Command),
		aliases: make(map[string]string),
	}
}

// Register installs a command, replacing any previous command with the same
// name (reload semantics). A malformed command leaves the registered set
// untouched.
func (r *Registry) Register(c Command) error {
	return r.register(c, true)
}

// RegisterExclusive installs a command but fails with ErrDuplicateName when
// the name or an alias is already taken.
func (r *Registry) RegisterExclusive(c Command) error {
	return r.register(c, false)
}

func (r *Registry) register(c Command, overwrite bool) error {
	if c == nil || strings.TrimSpace(c.Name()) == "" {
		return ErrInvalidCommand
	}
	name := strings.ToLower(c.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if !overwrite {
		if _, ok := r.byName[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		for _, a := range c.Aliases() {
			alias := strings.ToLower(a)
			if _, ok := r.byName[alias]; ok {
				return fmt.Errorf("%w: alias %s", ErrDuplicateName, alias)
			}
			if _, ok := r.aliases[alias]; ok {
				return fmt.Errorf("%w: alias %s", ErrDuplicateName, alias)
			}
		}
	}

	// Drop aliases belonging to the command being replaced so a reload
	// cannot leave stale alias entries behind.
	if prev, ok := r.byName[name]; ok {
		for _, a := range prev.Aliases() {
			delete(r.aliases, strings.ToLower(a))
		}
	}

	r.byName[name] = c
	for _, a := range c.Aliases() {
		alias := strings.ToLower(a)
		if alias != "" && alias != name {
			r.aliases[alias] = name
		}
	}
	return nil
}

// Unregister removes a command and its aliases. Returns false when the name
// was not installed.
func (r *Registry) Unregister(name string) bool {
	name = strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	if !ok {
		return false
	}
	for _, a := range c.Aliases() {
		delete(r.aliases, strings.ToLower(a))
	}
	delete(r.byName, name)
	return true
}

// Resolve finds a command by name or alias, case-insensitive.
func (r *Registry) Resolve(nameOrAlias string) (Command, bool) {
	key := strings.ToLower(nameOrAlias)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byName[key]; ok {
		return c, true
	}
	if name, ok := r.aliases[key]; ok {
		c, ok := r.byName[name]
		return c, ok
	}
	return nil, false
}

// All returns the installed commands sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Command, 0, len(r.byName))
	for _, c := range r.byName {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}
