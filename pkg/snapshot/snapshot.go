// Package snapshot abstracts whole-document persistence. Stores that keep
// their source of truth in memory (client registry, token ledger) write a
// single JSON document through this interface and reload it at startup.
package snapshot

import "sync"

// Store loads and saves one opaque document.
type Store interface {
	// Load returns the last saved document, or (nil, nil) if none exists yet.
	Load() ([]byte, error)
	// Save replaces the document.
	Save(data []byte) error
}

// Memory is an in-process Store for tests and ephemeral deployments.
type Memory struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *Memory) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make([]byte, len(data))
	copy(m.data, data)
	m.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
