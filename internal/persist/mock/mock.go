// Package mock provides an in-memory [persist.KV] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/speechset/speechset/internal/persist"
)

// Compile-time assertion that KV satisfies persist.KV.
var _ persist.KV = (*KV)(nil)

// KV is an in-memory key-value store that records how often each key was
// written so tests can assert on persistence traffic.
type KV struct {
	mu     sync.Mutex
	data   map[string][]byte
	puts   map[string]int
	PutErr error // when set, Put returns this error
}

// NewKV returns an empty in-memory store.
func NewKV() *KV {
	return &KV{data: make(map[string][]byte), puts: make(map[string]int)}
}

// Seed stores value under key without counting it as a Put.
func (m *KV) Seed(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// PutCount returns how many times key was written via Put.
func (m *KV) PutCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[key]
}

// Get implements [persist.KV].
func (m *KV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("mock kv: %q: %w", key, persist.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Put implements [persist.KV].
func (m *KV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.data[key] = append([]byte(nil), value...)
	m.puts[key]++
	return nil
}

// Delete implements [persist.KV].
func (m *KV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close implements [persist.KV].
func (m *KV) Close() error { return nil }
