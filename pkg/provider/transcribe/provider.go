// Package transcribe defines the speech-to-text provider abstraction used to
// draft transcripts for uploaded audio clips.
package transcribe

import (
	"context"
	"errors"
)

// ErrUnavailable marks transport-level failures (connection refused, HTTP 5xx,
// timeouts) that a caller may retry or fall back on.
var ErrUnavailable = errors.New("transcription backend unavailable")

// Clip is one audio file handed to a provider for transcription.
type Clip struct {
	// FileName is the original upload name, used for container hints.
	FileName string
	// MIME is the declared content type of the audio payload.
	MIME string
	// Data is the raw audio payload.
	Data []byte
	// Language is an optional BCP-47 hint (e.g. "en", "ar").
	Language string
}

// Result is a finished transcription.
type Result struct {
	// Text is the transcript, whitespace-trimmed.
	Text string
	// Model is the model that produced the transcript, when known.
	Model string
}

// Provider turns audio clips into transcripts.
//
// Transcribe must respect ctx cancellation. TestConnection performs a cheap
// credentialed request so a UI can validate configuration without burning
// audio minutes.
type Provider interface {
	// Name identifies the provider ("openai", "gemini", "whisper", ...).
	Name() string
	// Transcribe returns the transcript of clip.
	Transcribe(ctx context.Context, clip Clip) (Result, error)
	// TestConnection verifies that the provider is reachable and the
	// credentials are accepted.
	TestConnection(ctx context.Context) error
}
