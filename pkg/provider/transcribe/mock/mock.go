// Package mock provides a scripted transcribe.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// Compile-time assertion that Provider satisfies transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Provider is a scripted transcription provider. Configure the exported
// fields before use; the zero value returns empty results.
type Provider struct {
	// NameValue is returned by Name. Defaults to "mock".
	NameValue string
	// Result is returned by Transcribe when Err is nil.
	Result transcribe.Result
	// Err is returned by Transcribe.
	Err error
	// TestErr is returned by TestConnection.
	TestErr error
	// Delay, when set, is waited (or ctx cancelled) before answering.
	Delay <-chan struct{}

	mu    sync.Mutex
	clips []transcribe.Clip
}

// Name implements transcribe.Provider.
func (m *Provider) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// Transcribe implements transcribe.Provider and records the clip.
func (m *Provider) Transcribe(ctx context.Context, clip transcribe.Clip) (transcribe.Result, error) {
	if m.Delay != nil {
		select {
		case <-m.Delay:
		case <-ctx.Done():
			return transcribe.Result{}, ctx.Err()
		}
	}
	m.mu.Lock()
	m.clips = append(m.clips, clip)
	m.mu.Unlock()
	if m.Err != nil {
		return transcribe.Result{}, m.Err
	}
	return m.Result, nil
}

// TestConnection implements transcribe.Provider.
func (m *Provider) TestConnection(context.Context) error { return m.TestErr }

// Clips returns the clips passed to Transcribe so far.
func (m *Provider) Clips() []transcribe.Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transcribe.Clip, len(m.clips))
	copy(out, m.clips)
	return out
}
