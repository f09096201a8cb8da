// Package library tracks the audio files uploaded in the current working set
// and which one is selected for editing.
package library

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a file name is not in the library.
var ErrNotFound = errors.New("file not found")

// AudioFile is one uploaded audio clip held in memory.
type AudioFile struct {
	// Name is the original upload file name, the key everything else uses.
	Name string
	// MIME is the declared content type of the upload.
	MIME string
	// Data is the raw audio payload.
	Data []byte
}

// Library is the in-memory set of uploaded audio files plus the current
// selection. All methods are safe for concurrent use.
type Library struct {
	mu      sync.RWMutex
	files   map[string]AudioFile
	order   []string
	current string
}

// New returns an empty library.
func New() *Library {
	return &Library{files: make(map[string]AudioFile)}
}

// Add inserts f, replacing any file with the same name while keeping its
// position in the upload order.
func (l *Library) Add(f AudioFile) error {
	if f.Name == "" {
		return errors.New("library: file name must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.files[f.Name]; !exists {
		l.order = append(l.order, f.Name)
	}
	l.files[f.Name] = f
	return nil
}

// Get returns the file stored under name.
func (l *Library) Get(name string) (AudioFile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.files[name]
	if !ok {
		return AudioFile{}, fmt.Errorf("library: %q: %w", name, ErrNotFound)
	}
	return f, nil
}

// Has reports whether name is in the library.
func (l *Library) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.files[name]
	return ok
}

// Names returns the file names in upload order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of files in the library.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}

// Remove deletes name from the library. Removing the current selection
// clears it.
func (l *Library) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.files[name]; !ok {
		return fmt.Errorf("library: %q: %w", name, ErrNotFound)
	}
	delete(l.files, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if l.current == name {
		l.current = ""
	}
	return nil
}

// Clear empties the library and the current selection.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files = make(map[string]AudioFile)
	l.order = nil
	l.current = ""
}

// SetCurrent marks name as the file being edited. An empty name clears the
// selection; any other name must exist in the library.
func (l *Library) SetCurrent(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name != "" {
		if _, ok := l.files[name]; !ok {
			return fmt.Errorf("library: %q: %w", name, ErrNotFound)
		}
	}
	l.current = name
	return nil
}

// Current returns the name of the file being edited, or "".
func (l *Library) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}
