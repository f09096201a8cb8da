package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// ErrAllFailed is returned when every provider in a [FallbackTranscriber]
// fails or has an open circuit breaker.
var ErrAllFailed = errors.New("all transcription providers failed")

// Compile-time assertion that FallbackTranscriber satisfies transcribe.Provider.
var _ transcribe.Provider = (*FallbackTranscriber)(nil)

// fallbackEntry pairs a provider with its dedicated circuit breaker.
type fallbackEntry struct {
	provider transcribe.Provider
	breaker  *CircuitBreaker
}

// FallbackTranscriber chains a primary transcription provider with zero or
// more fallbacks. A provider whose breaker is open is skipped; a provider
// that reports [transcribe.ErrUnavailable] hands the clip to the next entry.
// Other errors (bad audio, rejected request) abort the chain, since every
// provider would refuse the same clip.
type FallbackTranscriber struct {
	entries []fallbackEntry
	cfg     BreakerConfig
}

// NewFallbackTranscriber creates a chain with primary as the first entry.
func NewFallbackTranscriber(primary transcribe.Provider, cfg BreakerConfig) *FallbackTranscriber {
	f := &FallbackTranscriber{cfg: cfg}
	f.add(primary)
	return f
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order
// they are added, after the primary.
func (f *FallbackTranscriber) AddFallback(p transcribe.Provider) {
	f.add(p)
}

func (f *FallbackTranscriber) add(p transcribe.Provider) {
	cbCfg := f.cfg
	cbCfg.Name = p.Name()
	f.entries = append(f.entries, fallbackEntry{
		provider: p,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Name implements transcribe.Provider.
func (f *FallbackTranscriber) Name() string {
	names := make([]string, len(f.entries))
	for i, e := range f.entries {
		names[i] = e.provider.Name()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// Transcribe implements transcribe.Provider, trying each entry in order.
func (f *FallbackTranscriber) Transcribe(ctx context.Context, clip transcribe.Clip) (transcribe.Result, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]

		var result transcribe.Result
		err := entry.breaker.Execute(func() error {
			var inner error
			result, inner = entry.provider.Transcribe(ctx, clip)
			return inner
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping transcription provider (circuit open)",
				"provider", entry.provider.Name())
		case errors.Is(err, transcribe.ErrUnavailable):
			slog.Warn("transcription provider unavailable, trying next",
				"provider", entry.provider.Name(), "error", err)
		default:
			// Permanent failure for this clip.
			return transcribe.Result{}, err
		}
	}
	return transcribe.Result{}, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// TestConnection implements transcribe.Provider. It succeeds if any entry in
// the chain is reachable.
func (f *FallbackTranscriber) TestConnection(ctx context.Context) error {
	var lastErr error
	for i := range f.entries {
		if err := f.entries[i].provider.TestConnection(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
