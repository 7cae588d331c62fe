package memorystore

import "sync"

// SymbolStore is the set of symbols polled by the background tracker.
// Insertion order is kept so batch requests are stable across cycles.
type SymbolStore struct {
	mu      sync.RWMutex
	index   map[string]struct{}
	symbols []string
	limit   int // 0 means unbounded
}

func NewSymbolStore(seed ...string) *SymbolStore {
	return NewLimitedSymbolStore(0, seed...)
}

// NewLimitedSymbolStore builds a set that holds at most limit symbols. Seed
// symbols beyond the limit are dropped.
func NewLimitedSymbolStore(limit int, seed ...string) *SymbolStore {
	s := &SymbolStore{
		index:   make(map[string]struct{}, len(seed)),
		symbols: make([]string, 0, len(seed)),
		limit:   max(limit, 0),
	}
	for _, symbol := range seed {
		s.AddAndTrack(symbol)
	}
	return s
}

// AddAndTrack adds symbol to the set. It reports whether the symbol was new
// and accepted; a full set rejects new symbols.
func (s *SymbolStore) AddAndTrack(symbol string) bool {
	if symbol == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[symbol]; ok {
		return false
	}
	if s.limit > 0 && len(s.symbols) >= s.limit {
		return false
	}
	s.index[symbol] = struct{}{}
	s.symbols = append(s.symbols, symbol)
	return true
}

// Remove drops symbol from the set, keeping the order of the rest.
func (s *SymbolStore) Remove(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[symbol]; !ok {
		return false
	}
	delete(s.index, symbol)
	for i, sym := range s.symbols {
		if sym == symbol {
			s.symbols = append(s.symbols[:i], s.symbols[i+1:]...)
			break
		}
	}
	return true
}

func (s *SymbolStore) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[symbol]
	return ok
}

func (s *SymbolStore) GetAll() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *SymbolStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}
