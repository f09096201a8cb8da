package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/speechset/speechset/pkg/provider/textgen"
	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transcribe map[string]func(ProviderEntry) (transcribe.Provider, error)
	textgen    map[string]func(ProviderEntry) (textgen.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcribe: make(map[string]func(ProviderEntry) (transcribe.Provider, error)),
		textgen:    make(map[string]func(ProviderEntry) (textgen.Provider, error)),
	}
}

// RegisterTranscribe registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscribe(name string, factory func(ProviderEntry) (transcribe.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe[name] = factory
}

// RegisterTextgen registers a text-generation provider factory under name.
func (r *Registry) RegisterTextgen(name string, factory func(ProviderEntry) (textgen.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textgen[name] = factory
}

// CreateTranscribe instantiates a transcription provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcribe[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcribe/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTextgen instantiates a text-generation provider using the factory
// registered under entry.Name.
func (r *Registry) CreateTextgen(entry ProviderEntry) (textgen.Provider, error) {
	r.mu.RLock()
	factory, ok := r.textgen[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: textgen/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
