// Package ai wires the transcription and text-generation providers into the
// transcript editing workflow.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/settings"
	"github.com/speechset/speechset/internal/transcript"
	"github.com/speechset/speechset/pkg/provider/textgen"
	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// ErrNotConfigured is returned when an operation needs a provider that has
// not been set up (no API key, no provider selected).
var ErrNotConfigured = errors.New("ai provider is not configured")

// ErrNoTranscript is returned by Normalize when the target file has no
// transcript text to work with.
var ErrNoTranscript = errors.New("no transcript to normalize")

// normalizationPrompt is the fixed system prompt for transcript
// normalization. The reply must contain only the normalized text.
const normalizationPrompt = `You normalize transcripts for speech dataset training. Rewrite the text the user sends: convert it to lowercase, spell out all numbers, symbols and abbreviations as words, remove extra spaces and punctuation, and keep the original language. Reply with only the normalized text and nothing else.`

// Outcome is the result of an AI operation against a single file.
type Outcome struct {
	// Text is the provider's reply.
	Text string
	// Applied reports whether the reply was written back. A reply is
	// discarded when the user has moved to a different file while the
	// request was in flight.
	Applied bool
}

// Service runs AI transcription and normalization against the transcript
// store, discarding results that arrive after the selection changed.
type Service struct {
	store    *transcript.MemStore
	lib      *library.Library
	settings *settings.Manager

	mu          sync.RWMutex
	transcriber transcribe.Provider
	generator   textgen.Provider
}

// NewService creates a Service with no providers configured.
func NewService(store *transcript.MemStore, lib *library.Library, st *settings.Manager) *Service {
	return &Service{store: store, lib: lib, settings: st}
}

// SetTranscriber installs (or clears, with nil) the transcription provider.
func (s *Service) SetTranscriber(p transcribe.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriber = p
}

// SetGenerator installs (or clears, with nil) the text-generation provider.
func (s *Service) SetGenerator(p textgen.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generator = p
}

func (s *Service) providers() (transcribe.Provider, textgen.Provider) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcriber, s.generator
}

// TranscriberName returns the name of the configured transcription provider,
// or "" when none is set.
func (s *Service) TranscriberName() string {
	tp, _ := s.providers()
	if tp == nil {
		return ""
	}
	return tp.Name()
}

// GeneratorName returns the name of the configured text-generation provider,
// or "" when none is set.
func (s *Service) GeneratorName() string {
	_, gen := s.providers()
	if gen == nil {
		return ""
	}
	return gen.Name()
}

// Transcribe sends the named audio file to the transcription provider and,
// if the file is still the current selection when the reply arrives, stores
// the transcript.
func (s *Service) Transcribe(ctx context.Context, fileName string) (Outcome, error) {
	tp, _ := s.providers()
	if tp == nil {
		return Outcome{}, fmt.Errorf("ai: transcribe: %w", ErrNotConfigured)
	}

	f, err := s.lib.Get(fileName)
	if err != nil {
		return Outcome{}, fmt.Errorf("ai: transcribe: %w", err)
	}

	res, err := tp.Transcribe(ctx, transcribe.Clip{
		FileName: f.Name,
		MIME:     f.MIME,
		Data:     f.Data,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("ai: transcribe %q: %w", fileName, err)
	}

	if s.lib.Current() != fileName {
		slog.Info("discarding stale transcription result",
			"file", fileName, "current", s.lib.Current())
		return Outcome{Text: res.Text}, nil
	}
	s.store.Set(fileName, res.Text)
	return Outcome{Text: res.Text, Applied: true}, nil
}

// Normalize sends the file's transcript to the text-generation provider and,
// if the file is still the current selection when the reply arrives, records
// the reply as that file's normalized-text override.
func (s *Service) Normalize(ctx context.Context, fileName string) (Outcome, error) {
	_, gen := s.providers()
	if gen == nil {
		return Outcome{}, fmt.Errorf("ai: normalize: %w", ErrNotConfigured)
	}

	text := s.store.Get(fileName)
	if strings.TrimSpace(text) == "" {
		return Outcome{}, fmt.Errorf("ai: normalize %q: %w", fileName, ErrNoTranscript)
	}

	reply, err := gen.Complete(ctx, normalizationPrompt, text)
	if err != nil {
		return Outcome{}, fmt.Errorf("ai: normalize %q: %w", fileName, err)
	}

	if s.lib.Current() != fileName {
		slog.Info("discarding stale normalization result",
			"file", fileName, "current", s.lib.Current())
		return Outcome{Text: reply}, nil
	}
	s.settings.SetNormalizedOverride(fileName, reply)
	if err := s.settings.Save(ctx); err != nil {
		return Outcome{Text: reply, Applied: true}, fmt.Errorf("ai: persist override: %w", err)
	}
	return Outcome{Text: reply, Applied: true}, nil
}

// TestConnection checks every configured provider and joins their failures.
// With no providers configured it returns [ErrNotConfigured].
func (s *Service) TestConnection(ctx context.Context) error {
	tp, gen := s.providers()
	if tp == nil && gen == nil {
		return fmt.Errorf("ai: test connection: %w", ErrNotConfigured)
	}

	var errs []error
	if tp != nil {
		if err := tp.TestConnection(ctx); err != nil {
			errs = append(errs, fmt.Errorf("transcription (%s): %w", tp.Name(), err))
		}
	}
	if gen != nil {
		if err := gen.TestConnection(ctx); err != nil {
			errs = append(errs, fmt.Errorf("text generation (%s): %w", gen.Name(), err))
		}
	}
	return errors.Join(errs...)
}
