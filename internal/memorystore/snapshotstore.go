package memorystore

import (
	"sync"
	"time"

	"volumetracker/internal/quote"
)

// UpdateFunc computes the next snapshot for a symbol from its classifier state
// and the snapshot currently cached (nil when there is none). Returning
// ok=false leaves the symbol untouched.
type UpdateFunc func(prev quote.PrevState, last *quote.Snapshot) (snap quote.Snapshot, next quote.PrevState, ok bool)

// SnapshotStore holds the latest snapshot and the classifier state of every
// symbol. The global lock only guards the symbol map; each symbol carries its
// own lock so writers for different symbols never wait on each other.
type SnapshotStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolState
}

type symbolState struct {
	mu    sync.Mutex
	entry *quote.CacheEntry
	prev  quote.PrevState
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*symbolState),
	}
}

func (s *SnapshotStore) state(symbol string) *symbolState {
	// Fast path: symbol already known
	s.globalMu.RLock()
	st, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if ok {
		return st
	}

	s.globalMu.Lock()
	if st, ok = s.data[symbol]; !ok {
		st = &symbolState{}
		s.data[symbol] = st
	}
	s.globalMu.Unlock()
	return st
}

func (s *SnapshotStore) lookup(symbol string) (*symbolState, bool) {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	st, ok := s.data[symbol]
	return st, ok
}

// Get returns the cache entry of a symbol.
func (s *SnapshotStore) Get(symbol string) (quote.CacheEntry, bool) {
	st, ok := s.lookup(symbol)
	if !ok {
		return quote.CacheEntry{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.entry == nil {
		return quote.CacheEntry{}, false
	}
	return *st.entry, true
}

// Put replaces the cache entry of snap.Symbol. Classifier state is untouched.
func (s *SnapshotStore) Put(snap quote.Snapshot, now time.Time) {
	st := s.state(snap.Symbol)

	st.mu.Lock()
	st.entry = &quote.CacheEntry{Snapshot: snap, CapturedAt: now}
	st.mu.Unlock()
}

// Update runs fn under the symbol's lock and stores both the snapshot and the
// classifier state it returns, so a reader never sees one without the other.
func (s *SnapshotStore) Update(symbol string, now time.Time, fn UpdateFunc) (quote.Snapshot, bool) {
	st := s.state(symbol)

	st.mu.Lock()
	defer st.mu.Unlock()

	var last *quote.Snapshot
	if st.entry != nil {
		cp := st.entry.Snapshot
		last = &cp
	}

	snap, next, ok := fn(st.prev, last)
	if !ok {
		return quote.Snapshot{}, false
	}
	st.prev = next
	st.entry = &quote.CacheEntry{Snapshot: snap, CapturedAt: now}
	return snap, true
}

// PrevState returns the classifier state of a symbol.
func (s *SnapshotStore) PrevState(symbol string) quote.PrevState {
	st, ok := s.lookup(symbol)
	if !ok {
		return quote.PrevState{}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.prev
}

// ResetPrev forgets the classifier state of every symbol. Cached snapshots are
// kept; the next observation of each symbol counts as a first observation.
func (s *SnapshotStore) ResetPrev() {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	for _, st := range s.data {
		st.mu.Lock()
		st.prev = quote.PrevState{}
		st.mu.Unlock()
	}
}

// Count returns the number of symbols with a cached snapshot.
func (s *SnapshotStore) Count() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, st := range s.data {
		st.mu.Lock()
		if st.entry != nil {
			total++
		}
		st.mu.Unlock()
	}
	return total
}
