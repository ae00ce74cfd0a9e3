package credentials

import "sync"

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the pair in process memory only. It is the store used in
// tests and as the in-memory half of the FileStore.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

func (s *MemoryStore) Set(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if access == "" {
		s.pair = Pair{}
		return
	}
	s.pair = Pair{AccessToken: access, RefreshToken: refresh}
}

func (s *MemoryStore) Clear() {
	s.Set("", "")
}
