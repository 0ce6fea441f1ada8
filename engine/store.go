package engine

import (
	"sync"
	"time"

	"github.com/drummonds/goflipbook/document"
)

// StoredSet is a rendered set kept for the browser to download
type StoredSet struct {
	ID        string
	Name      string
	Set       *document.RenderedSet
	CreatedAt time.Time

	lastAccess time.Time
}

// Bytes is the encoded size of every page
func (s *StoredSet) Bytes() int64 {
	var n int64
	for _, p := range s.Set.Pages {
		n += int64(len(p.Data))
	}
	return n
}

// SetStore keeps rendered sets in memory until they go unused for the TTL
type SetStore struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	sets map[string]*StoredSet
}

// NewSetStore creates an empty store; a zero ttl keeps sets for 30 minutes
func NewSetStore(ttl time.Duration) *SetStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SetStore{ttl: ttl, now: time.Now, sets: make(map[string]*StoredSet)}
}

// Put stores set under id, replacing any previous set with that id
func (s *SetStore) Put(id, name string, set *document.RenderedSet) *StoredSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	stored := &StoredSet{ID: id, Name: name, Set: set, CreatedAt: now, lastAccess: now}
	s.sets[id] = stored
	return stored
}

// Get returns the set and refreshes its expiry
func (s *SetStore) Get(id string) (*StoredSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sets[id]
	if !ok {
		return nil, false
	}
	stored.lastAccess = s.now()
	return stored, true
}

// Delete drops a set, reporting whether it existed
func (s *SetStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[id]
	delete(s.sets, id)
	return ok
}

// Prune drops every set unused for longer than the TTL
func (s *SetStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	pruned := 0
	for id, stored := range s.sets {
		if stored.lastAccess.Before(cutoff) {
			delete(s.sets, id)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of stored sets
func (s *SetStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}
