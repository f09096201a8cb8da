// Package transcript holds the per-file transcript texts, keyed by the exact
// uploaded file name, and keeps them durable through the persistence
// collaborator with a debounced autosaver.
package transcript

// StorageKey is the persistence key under which the transcript map is stored.
const StorageKey = "transcripts"

// Event describes one change to the store.
type Event struct {
	// FileName is the key that changed. Empty when Reset is set.
	FileName string
	// Text is the new transcript text for FileName.
	Text string
	// Reset indicates the whole store was cleared.
	Reset bool
}

// Subscriber receives store change events. Callbacks run synchronously on
// the mutating goroutine and must not block.
type Subscriber func(Event)
