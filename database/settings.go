package database

import (
	"sort"
	"sync"
)

// Settings maps aliases to database configurations. It stands in for the
// process-wide "current database" application code connects through, so a
// scope can point an alias at a temporary database and put it back later.
type Settings struct {
	mu        sync.RWMutex
	databases map[string]Config
}

// NewSettings creates a registry holding a copy of databases.
func NewSettings(databases map[string]Config) *Settings {
	s := &Settings{databases: make(map[string]Config, len(databases))}
	for alias, cfg := range databases {
		s.databases[alias] = cfg
	}
	return s
}

var global = NewSettings(nil)

// Global returns the process-wide registry.
func Global() *Settings {
	return global
}

// Get returns the configuration registered under alias.
func (s *Settings) Get(alias string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.databases[alias]
	return cfg, ok
}

// Set registers cfg under alias, replacing any previous value.
func (s *Settings) Set(alias string, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databases[alias] = cfg
}

// Delete removes alias.
func (s *Settings) Delete(alias string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.databases, alias)
}

// Swap registers cfg under alias and returns the value it replaced.
func (s *Settings) Swap(alias string, cfg Config) (prev Config, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed = s.databases[alias]
	s.databases[alias] = cfg
	return prev, existed
}

// Aliases returns every registered alias, sorted.
func (s *Settings) Aliases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	aliases := make([]string, 0, len(s.databases))
	for alias := range s.databases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// MirrorsOf returns the aliases whose Mirror is alias, sorted.
func (s *Settings) MirrorsOf(alias string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mirrors []string
	for name, cfg := range s.databases {
		if name != alias && cfg.Mirror == alias {
			mirrors = append(mirrors, name)
		}
	}
	sort.Strings(mirrors)
	return mirrors
}

// Snapshot returns a copy of every alias and its configuration.
func (s *Settings) Snapshot() map[string]Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Config, len(s.databases))
	for alias, cfg := range s.databases {
		out[alias] = cfg
	}
	return out
}

// Override records the previous value of every alias it swaps so that
// Restore can put them back exactly, including aliases that did not exist.
type Override struct {
	settings *Settings
	entries  []overrideEntry
}

type overrideEntry struct {
	alias   string
	prev    Config
	existed bool
}

// NewOverride starts an empty override on s.
func (s *Settings) NewOverride() *Override {
	return &Override{settings: s}
}

// Swap points alias at cfg, remembering the previous value. The first
// remembered value for an alias wins.
func (o *Override) Swap(alias string, cfg Config) {
	prev, existed := o.settings.Swap(alias, cfg)
	for _, e := range o.entries {
		if e.alias == alias {
			return
		}
	}
	o.entries = append(o.entries, overrideEntry{alias: alias, prev: prev, existed: existed})
}

// Aliases returns the swapped aliases in swap order.
func (o *Override) Aliases() []string {
	aliases := make([]string, len(o.entries))
	for i, e := range o.entries {
		aliases[i] = e.alias
	}
	return aliases
}

// Restore puts every swapped alias back in reverse order. It is safe to
// call more than once.
func (o *Override) Restore() {
	for i := len(o.entries) - 1; i >= 0; i-- {
		e := o.entries[i]
		if e.existed {
			o.settings.Set(e.alias, e.prev)
		} else {
			o.settings.Delete(e.alias)
		}
	}
	o.entries = nil
}
