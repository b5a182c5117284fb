package alignment

import "sync"

// KVStore is the persistence collaborator: a synchronous, fallible
// key to string mapping. Implementations can be in-memory, file-based or
// backed by a database; the SyncStateStore does not need to know which.
type KVStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// InMemoryKV is an in-memory implementation of KVStore.
type InMemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryKV returns a new empty in-memory store.
func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{
		values: make(map[string]string),
	}
}

// Get implements KVStore.Get.
func (s *InMemoryKV) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements KVStore.Set.
func (s *InMemoryKV) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove implements KVStore.Remove.
func (s *InMemoryKV) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
