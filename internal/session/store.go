// Package session keeps the per-session simulation records.
package session

import (
	"slices"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of snapshots kept per session.
const DefaultHistoryLimit = 3600

// Store is the registry of active session records.
type Store struct {
	mu           sync.RWMutex
	records      map[string]*Record
	historyLimit int
	now          func() time.Time
}

// NewStore creates an empty store. historyLimit <= 0 selects DefaultHistoryLimit.
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		records:      make(map[string]*Record),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// WithClock overrides the clock used for record start times.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Register creates a record for id if there is none. It returns the record
// and whether it was newly created.
func (s *Store) Register(id string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec, false
	}
	rec := newRecord(id, s.now(), s.historyLimit)
	s.records[id] = rec
	return rec, true
}

// Unregister removes the record and returns it, or nil if absent.
func (s *Store) Unregister(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[id]
	delete(s.records, id)
	return rec
}

// Get returns the record for id, or nil.
func (s *Store) Get(id string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

// IDs returns the registered session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
