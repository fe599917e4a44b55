package views

import (
	"sort"
	"sync"

	"github.com/pleasantbot/pleasantdash/internal/botapi"
)

// CommandRow is one line of the commands table.
type CommandRow struct {
	Name     string            `json:"name"`
	Response string            `json:"response"`
	Perm     botapi.Permission `json:"perm"`
}

// CommandRows flattens the keyed commands into rows ordered by name.
func CommandRows(coms map[string]botapi.Command) []CommandRow {
	rows := make([]CommandRow, 0, len(coms))
	for _, name := range botapi.SortedNames(coms) {
		com := coms[name]
		rows = append(rows, CommandRow{Name: name, Response: com.Response, Perm: com.Perm})
	}
	return rows
}

// QuoteRow is one line of the quotes table.
type QuoteRow struct {
	ID        int    `json:"id"`
	Quote     string `json:"quote"`
	Timestamp string `json:"timestamp"`
	Submitter string `json:"submitter"`
}

// QuoteRows flattens the keyed quotes into rows ordered by id.
func QuoteRows(quotes map[int]botapi.Quote) []QuoteRow {
	ids := make([]int, 0, len(quotes))
	for id := range quotes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rows := make([]QuoteRow, 0, len(ids))
	for _, id := range ids {
		q := quotes[id]
		rows = append(rows, QuoteRow{ID: id, Quote: q.Quote, Timestamp: q.Timestamp, Submitter: q.Submitter})
	}
	return rows
}

// Selection is the set of selected row keys, in the order they were picked.
type Selection struct {
	mu   sync.Mutex
	keys []string
}

// Set selects or deselects one key.
func (s *Selection) Set(key string, selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, selected)
}

// SetAll selects or deselects every key given.
func (s *Selection) SetAll(keys []string, selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.set(k, selected)
	}
}

func (s *Selection) set(key string, selected bool) {
	idx := -1
	for i, k := range s.keys {
		if k == key {
			idx = i
			break
		}
	}
	switch {
	case selected && idx < 0:
		s.keys = append(s.keys, key)
	case !selected && idx >= 0:
		s.keys = append(s.keys[:idx], s.keys[idx+1:]...)
	}
}

// Has reports whether key is selected.
func (s *Selection) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k == key {
			return true
		}
	}
	return false
}

// Keys returns a copy of the selected keys.
func (s *Selection) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of selected keys.
func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Clear deselects everything.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = nil
}

// Retain drops selected keys that are not in present.
func (s *Selection) Retain(present func(key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.keys[:0]
	for _, k := range s.keys {
		if present(k) {
			kept = append(kept, k)
		}
	}
	s.keys = kept
}
