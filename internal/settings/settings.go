// Package settings manages the persisted application settings document:
// active dataset format, custom layout config, LJSpeech normalization options
// with their manual overrides, and AI provider credentials.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/normalize"
	"github.com/speechset/speechset/internal/persist"
)

// StorageKey is the persistence key of the settings document.
const StorageKey = "speech-data-builder-settings"

// AISettings holds the AI provider selection and credentials.
type AISettings struct {
	Provider    string `json:"provider"`
	APIKey      string `json:"apiKey"`
	ActiveModel string `json:"activeModel"`
}

// LJSpeechOptions holds the LJSpeech-specific normalization settings.
type LJSpeechOptions struct {
	// NormalizeText enables automatic normalization of the third field.
	NormalizeText bool `json:"normalizeText"`
	// PreserveNonLatin keeps non-Latin scripts intact during normalization.
	PreserveNonLatin bool `json:"preserveNonLatinCharacters"`
	// ManualNormalized maps file names to hand-corrected normalized text.
	ManualNormalized map[string]string `json:"manualNormalized"`
}

// Document is the full persisted settings document.
type Document struct {
	TranscriptFormat format.ID           `json:"transcriptFormat"`
	CustomFormat     format.CustomConfig `json:"customFormat"`
	LJSpeech         LJSpeechOptions     `json:"ljspeechOptions"`
	AI               AISettings          `json:"aiSettings"`
}

// DefaultDocument returns the out-of-the-box settings.
func DefaultDocument() Document {
	return Document{
		TranscriptFormat: format.Default,
		CustomFormat:     format.DefaultCustomConfig(),
		LJSpeech: LJSpeechOptions{
			NormalizeText:    true,
			PreserveNonLatin: true,
			ManualNormalized: make(map[string]string),
		},
	}
}

// Compile-time assertion that Manager supplies manual overrides to the
// format layer.
var _ format.Overrides = (*Manager)(nil)

// Manager owns the settings document, keeps it durable through the
// persistence collaborator, and notifies subscribers when the active format
// changes. All methods are safe for concurrent use.
type Manager struct {
	mu  sync.RWMutex
	doc Document
	kv  persist.KV

	subMu sync.RWMutex
	subs  []func(format.ID)
}

// NewManager returns a manager holding the default document. kv may be nil
// for tests; Load and Save are then no-ops.
func NewManager(kv persist.KV) *Manager {
	return &Manager{doc: DefaultDocument(), kv: kv}
}

// Load replaces the document with the persisted one. A missing key keeps the
// defaults and is not an error.
func (m *Manager) Load(ctx context.Context) error {
	if m.kv == nil {
		return nil
	}
	data, err := m.kv.Get(ctx, StorageKey)
	if errors.Is(err, persist.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}

	doc := DefaultDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("settings: decode persisted document: %w", err)
	}
	if doc.ManualOverrides() == nil {
		doc.LJSpeech.ManualNormalized = make(map[string]string)
	}
	if !doc.TranscriptFormat.IsValid() {
		doc.TranscriptFormat = format.Default
	}

	m.mu.Lock()
	m.doc = doc
	m.mu.Unlock()
	return nil
}

// ManualOverrides returns the manual normalization map of the document.
func (d Document) ManualOverrides() map[string]string {
	return d.LJSpeech.ManualNormalized
}

// Save persists the current document.
func (m *Manager) Save(ctx context.Context) error {
	if m.kv == nil {
		return nil
	}
	data, err := json.Marshal(m.Document())
	if err != nil {
		return fmt.Errorf("settings: encode document: %w", err)
	}
	if err := m.kv.Put(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

// Document returns a copy of the current document. The manual overrides map
// is copied so callers cannot mutate manager state.
func (m *Manager) Document() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc := m.doc
	overrides := make(map[string]string, len(m.doc.LJSpeech.ManualNormalized))
	for k, v := range m.doc.LJSpeech.ManualNormalized {
		overrides[k] = v
	}
	doc.LJSpeech.ManualNormalized = overrides
	return doc
}

// Format returns the active dataset format.
func (m *Manager) Format() format.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.TranscriptFormat
}

// SetFormat switches the active dataset format, persists the document, and
// notifies format subscribers.
func (m *Manager) SetFormat(ctx context.Context, id format.ID) error {
	if !id.IsValid() {
		return fmt.Errorf("settings: %q: %w", id, format.ErrUnknownFormat)
	}
	m.mu.Lock()
	changed := m.doc.TranscriptFormat != id
	m.doc.TranscriptFormat = id
	m.mu.Unlock()

	if err := m.Save(ctx); err != nil {
		return err
	}
	if changed {
		m.notifyFormat(id)
	}
	return nil
}

// Update replaces the whole document, persists it, and notifies format
// subscribers if the active format changed.
func (m *Manager) Update(ctx context.Context, doc Document) error {
	if !doc.TranscriptFormat.IsValid() {
		return fmt.Errorf("settings: %q: %w", doc.TranscriptFormat, format.ErrUnknownFormat)
	}
	if doc.LJSpeech.ManualNormalized == nil {
		doc.LJSpeech.ManualNormalized = make(map[string]string)
	}

	m.mu.Lock()
	changed := m.doc.TranscriptFormat != doc.TranscriptFormat
	m.doc = doc
	m.mu.Unlock()

	if err := m.Save(ctx); err != nil {
		return err
	}
	if changed {
		m.notifyFormat(doc.TranscriptFormat)
	}
	return nil
}

// SubscribeFormat registers fn for format-change notifications. Intended to
// be called during wiring, before concurrent use.
func (m *Manager) SubscribeFormat(fn func(format.ID)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *Manager) notifyFormat(id format.ID) {
	m.subMu.RLock()
	subs := make([]func(format.ID), len(m.subs))
	copy(subs, m.subs)
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(id)
	}
}

// FormatOptions builds the render options matching the current document,
// with the manager itself as the manual-override source.
func (m *Manager) FormatOptions() format.Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return format.Options{
		Custom:        m.doc.CustomFormat,
		AutoNormalize: m.doc.LJSpeech.NormalizeText,
		Policy:        normalize.Policy{PreserveNonLatin: m.doc.LJSpeech.PreserveNonLatin},
		Overrides:     m,
	}
}

// NormalizedOverride implements [format.Overrides].
func (m *Manager) NormalizedOverride(fileName string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.doc.LJSpeech.ManualNormalized[fileName]
	return v, ok
}

// SetNormalizedOverride implements [format.Overrides]. The change is held in
// memory; call Save to persist.
func (m *Manager) SetNormalizedOverride(fileName, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.LJSpeech.ManualNormalized[fileName] = text
}

// ClearOverrides drops every manual normalization and persists the document.
func (m *Manager) ClearOverrides(ctx context.Context) error {
	m.mu.Lock()
	m.doc.LJSpeech.ManualNormalized = make(map[string]string)
	m.mu.Unlock()
	return m.Save(ctx)
}
