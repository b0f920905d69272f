package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]any)}
}

// deepCopy returns a deep copy of a JSON value by round-tripping it, which
// also normalizes Go numbers to float64.
func deepCopy(src any) (any, error) {
	if src == nil {
		return nil, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("value is not representable as JSON: %w", err)
	}
	var dst any
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func (m *MemoryStore) GetAll() (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]any, len(m.data))
	for k, v := range m.data {
		c, err := deepCopy(v)
		if err != nil {
			return nil, err
		}
		result[k] = c
	}
	return result, nil
}

func (m *MemoryStore) Get(key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopy(m.data[key])
}

func (m *MemoryStore) Put(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := deepCopy(value)
	if err != nil {
		return err
	}
	m.data[key] = c
	return nil
}

func (m *MemoryStore) Delete(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
