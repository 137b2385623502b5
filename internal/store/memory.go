package store

import (
	"strings"
	"sync"
)

// Memory is a process-local Backend for tests and diskless runs.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string

	puts int
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[key]
	return v, ok, nil
}

func (m *Memory) Put(key, value string) error {
	m.mu.Lock()
	m.m[key] = value
	m.puts++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.m, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeletePrefix(prefix string) error {
	m.mu.Lock()
	for k := range m.m {
		if strings.HasPrefix(k, prefix) {
			delete(m.m, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// Puts reports how many writes have been applied.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

func (m *Memory) Close() error { return nil }
