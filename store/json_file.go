package store

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// JsonFileStore stores each top-level key of the tree as a separate JSON
// file on disk.
//
// Layout:
//
//	data_dir/
//	  users.json      # value at /users
//	  settings.json   # value at /settings
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) keyPath(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

func (s *JsonFileStore) loadFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *JsonFileStore) saveFile(path string, data any) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (s *JsonFileStore) GetAll() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, err := s.keys()
	if err != nil {
		return nil, err
	}
	result := make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := s.loadFile(s.keyPath(k))
		if err != nil {
			return nil, err
		}
		if v != nil {
			result[k] = v
		}
	}
	return result, nil
}

func (s *JsonFileStore) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadFile(s.keyPath(key))
}

func (s *JsonFileStore) Put(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveFile(s.keyPath(key), value)
}

func (s *JsonFileStore) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.keyPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *JsonFileStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys()
}

func (s *JsonFileStore) keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Close() error {
	return nil
}
