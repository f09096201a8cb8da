// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// Compile-time assertion that NativeProvider satisfies transcribe.Provider.
var _ transcribe.Provider = (*NativeProvider)(nil)

// NativeProvider implements transcribe.Provider using the whisper.cpp Go
// bindings (CGO), eliminating HTTP overhead entirely. The model is loaded
// once and shared across all calls; each call gets its own whisper context,
// so concurrent transcriptions do not interfere.
//
// Only 16-bit PCM WAV clips are accepted; other containers must be
// transcoded before upload.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "ar"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Name implements transcribe.Provider.
func (p *NativeProvider) Name() string { return "whisper-native" }

// Transcribe implements transcribe.Provider by running local inference over
// the decoded clip.
func (p *NativeProvider) Transcribe(ctx context.Context, clip transcribe.Clip) (transcribe.Result, error) {
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples, err := decodeWAV(clip.Data)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: %q: %w", clip.FileName, err)
	}

	lang := clip.Language
	if lang == "" {
		lang = p.language
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return transcribe.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return transcribe.Result{Text: strings.Join(parts, " ")}, nil
}

// TestConnection implements transcribe.Provider. The model was validated at
// load time, so a loaded model means the provider is usable.
func (p *NativeProvider) TestConnection(_ context.Context) error {
	if p.model == nil {
		return errors.New("whisper: model not loaded")
	}
	return nil
}

// decodeWAV extracts float32 mono samples from a 16-bit PCM RIFF/WAVE blob.
// Stereo input is downmixed by averaging the channels.
func decodeWAV(data []byte) ([]float32, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	var (
		channels      int
		bitsPerSample int
		pcm           []byte
	)

	// Walk the chunk list; fmt must precede data in a valid RIFF file.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errors.New("malformed fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported WAV encoding %d (want PCM)", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if pcm == nil || channels == 0 {
		return nil, errors.New("missing fmt or data chunk")
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported sample width %d (want 16-bit PCM)", bitsPerSample)
	}

	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			s := int16(binary.LittleEndian.Uint16(pcm[i*frameBytes+2*ch:]))
			sum += int32(s)
		}
		samples[i] = float32(sum/int32(channels)) / 32768.0
	}
	return samples, nil
}
