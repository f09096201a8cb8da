// Package textgen defines the text-generation provider abstraction used for
// AI transcript normalization.
package textgen

import (
	"context"
	"errors"
)

// ErrUnavailable marks transport-level failures that a caller may retry or
// fall back on.
var ErrUnavailable = errors.New("text generation backend unavailable")

// Provider produces a single completion from a system and user prompt.
type Provider interface {
	// Name identifies the provider ("openai", "anyllm", ...).
	Name() string
	// Complete returns the model's reply to the prompts,
	// whitespace-trimmed.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// TestConnection verifies that the provider is reachable and the
	// credentials are accepted.
	TestConnection(ctx context.Context) error
}
