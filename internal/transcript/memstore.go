package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/speechset/speechset/internal/persist"
)

// MemStore is an in-memory transcript map with optional durability through a
// [persist.KV]. All methods are safe for concurrent use.
//
// Mutations notify subscribers but do not write to the KV themselves; wire a
// [Saver] (or call [MemStore.Flush]) for durability.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string]string
	kv      persist.KV

	subMu sync.RWMutex
	subs  []Subscriber
}

// NewMemStore returns an empty store. kv may be nil for a purely in-memory
// store; Load and Flush are then no-ops.
func NewMemStore(kv persist.KV) *MemStore {
	return &MemStore{
		entries: make(map[string]string),
		kv:      kv,
	}
}

// Subscribe registers fn for change events. Intended to be called during
// wiring, before concurrent use.
func (s *MemStore) Subscribe(fn Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *MemStore) notify(ev Event) {
	s.subMu.RLock()
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Get returns the transcript for fileName, or "" when none is stored.
func (s *MemStore) Get(fileName string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[fileName]
}

// Has reports whether a transcript is stored under fileName.
func (s *MemStore) Has(fileName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[fileName]
	return ok
}

// Set stores text under fileName and notifies subscribers.
func (s *MemStore) Set(fileName, text string) {
	s.mu.Lock()
	s.entries[fileName] = text
	s.mu.Unlock()
	s.notify(Event{FileName: fileName, Text: text})
}

// All returns a copy of the whole transcript map.
func (s *MemStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of stored transcripts.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear empties the store and notifies subscribers with a reset event.
func (s *MemStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]string)
	s.mu.Unlock()
	s.notify(Event{Reset: true})
}

// Load replaces the in-memory map with the persisted one. A missing
// persistence key leaves the store empty and is not an error.
func (s *MemStore) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, persist.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("transcript: load: %w", err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("transcript: decode persisted map: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Flush writes the current map to the persistence collaborator.
func (s *MemStore) Flush(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	data, err := json.Marshal(s.All())
	if err != nil {
		return fmt.Errorf("transcript: encode map: %w", err)
	}
	if err := s.kv.Put(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("transcript: flush: %w", err)
	}
	return nil
}
