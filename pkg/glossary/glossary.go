package glossary

import (
	"sort"
	"sync"
)

// Entry is one glossary record as stored in the vocabulary JSON.
type Entry struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Emoji       string `json:"emoji,omitempty"`
	Audio       string `json:"audio,omitempty"`
}

// Store maps normalized word keys to entries. It is replaced wholesale on
// every load and is safe for concurrent reads.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: map[string]Entry{}}
}

// Load replaces the whole mapping. A nil map leaves the store empty.
// Entries without a display word take their key instead.
func (s *Store) Load(entries map[string]Entry) {
	next := make(map[string]Entry, len(entries))
	for k, e := range entries {
		if k == "" {
			continue
		}
		if e.Word == "" {
			e.Word = k
		}
		next[k] = e
	}

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

// Lookup returns the entry stored under key. Keys are matched exactly;
// callers normalize.
func (s *Store) Lookup(key string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return e, ok
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns the sorted keys.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the current mapping.
func (s *Store) Snapshot() map[string]Entry {
	if s == nil {
		return map[string]Entry{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = e
	}
	return out
}
