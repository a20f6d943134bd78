package session

import (
	"sync"

	"keyword-notifier/pkg/notifier"
)

// Log records, per subscribed phrase, the content that matched it in arrival
// order. Appending the same content id under the same phrase twice is a no-op.
type Log struct {
	mu      sync.RWMutex
	entries map[string][]*notifier.Content
	ids     map[string]map[string]struct{}
}

// NewLog creates an empty notification log.
func NewLog() *Log {
	return &Log{
		entries: make(map[string][]*notifier.Content),
		ids:     make(map[string]map[string]struct{}),
	}
}

// Append adds c under phrase and reports whether it was new.
func (l *Log) Append(phrase string, c *notifier.Content) bool {
	if c == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seen, ok := l.ids[phrase]
	if !ok {
		seen = make(map[string]struct{})
		l.ids[phrase] = seen
	}
	if _, dup := seen[c.ID]; dup {
		return false
	}
	seen[c.ID] = struct{}{}
	l.entries[phrase] = append(l.entries[phrase], c.Clone())
	return true
}

// Snapshot returns a deep copy of the log. Later appends are not visible
// through it and callers may modify it freely.
func (l *Log) Snapshot() map[string][]*notifier.Content {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string][]*notifier.Content, len(l.entries))
	for phrase, items := range l.entries {
		cp := make([]*notifier.Content, len(items))
		for i, c := range items {
			cp[i] = c.Clone()
		}
		out[phrase] = cp
	}
	return out
}

// Len returns the number of entries recorded under phrase.
func (l *Log) Len(phrase string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[phrase])
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string][]*notifier.Content)
	l.ids = make(map[string]map[string]struct{})
}
