// Package mock provides a scripted textgen.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/speechset/speechset/pkg/provider/textgen"
)

// Compile-time assertion that Provider satisfies textgen.Provider.
var _ textgen.Provider = (*Provider)(nil)

// Call records one Complete invocation.
type Call struct {
	SystemPrompt string
	UserPrompt   string
}

// Provider is a scripted text-generation provider.
type Provider struct {
	// NameValue is returned by Name. Defaults to "mock".
	NameValue string
	// Reply is returned by Complete when Err is nil.
	Reply string
	// Err is returned by Complete.
	Err error
	// TestErr is returned by TestConnection.
	TestErr error

	mu    sync.Mutex
	calls []Call
}

// Name implements textgen.Provider.
func (m *Provider) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// Complete implements textgen.Provider and records the prompts.
func (m *Provider) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// TestConnection implements textgen.Provider.
func (m *Provider) TestConnection(context.Context) error { return m.TestErr }

// Calls returns the recorded Complete invocations.
func (m *Provider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
