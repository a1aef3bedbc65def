package paste

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// memStore is an in-memory Store for tests
type memStore struct {
	mu   sync.Mutex
	data map[string]string

	// failDelete makes Delete fail for the listed keys
	failDelete map[string]bool
	// failPut makes Put fail for the listed keys
	failPut map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		data:       map[string]string{},
		failDelete: map[string]bool{},
		failPut:    map[string]bool{},
	}
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut[key] {
		return errors.New("put refused")
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete[key] {
		return errors.New("delete refused")
	}
	delete(m.data, key)
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}
