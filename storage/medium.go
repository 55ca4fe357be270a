package storage

import (
	"sort"
	"strings"
	"sync"
)

// Medium is the physical persistence behind the scoped store. Keys
// are fully namespaced strings, values are JSON-encoded payloads.
type Medium interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Keys returns every stored key with the given prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}

// MemoryMedium is a process-local Medium. It backs demo-only keys and
// serves as the degraded-mode fallback when the persistent medium is
// unavailable.
type MemoryMedium struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ Medium = (*MemoryMedium)(nil)

func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{entries: make(map[string][]byte)}
}

func (m *MemoryMedium) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, true, nil
}

func (m *MemoryMedium) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]byte, len(value))
	copy(copied, value)
	m.entries[key] = copied
	return nil
}

func (m *MemoryMedium) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryMedium) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryMedium) Close() error {
	return nil
}
