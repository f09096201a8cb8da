// Package whisper provides transcription providers backed by whisper.cpp:
// an HTTP provider for the bundled server binary and a native CGO provider
// that links libwhisper directly.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// Compile-time assertion that Provider satisfies transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 5 * time.Minute
)

// Provider implements transcribe.Provider against a whisper.cpp server
// (the `server` example binary) reachable over HTTP.
type Provider struct {
	baseURL  string
	language string
	client   *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the default transcription language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithTimeout sets a per-request HTTP timeout. Local inference on long clips
// can be slow, so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// New constructs a provider talking to the whisper.cpp server at baseURL,
// e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("whisper: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements transcribe.Provider.
func (p *Provider) Name() string { return "whisper" }

// inferenceResponse is the JSON body returned by the server's /inference.
type inferenceResponse struct {
	Text string `json:"text"`
}

// Transcribe implements transcribe.Provider by posting the clip to the
// server's /inference endpoint as multipart form data.
func (p *Provider) Transcribe(ctx context.Context, clip transcribe.Clip) (transcribe.Result, error) {
	lang := clip.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("language", lang); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build form: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build form: %w", err)
	}
	fw, err := mw.CreateFormFile("file", clip.FileName)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build form: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/inference", &body)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: inference request: %v: %w", err, transcribe.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode >= 500 {
			return transcribe.Result{}, fmt.Errorf("whisper: inference: http %d: %s: %w", resp.StatusCode, detail, transcribe.ErrUnavailable)
		}
		return transcribe.Result{}, fmt.Errorf("whisper: inference: http %d: %s", resp.StatusCode, detail)
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: decode response: %w", err)
	}
	return transcribe.Result{Text: strings.TrimSpace(ir.Text)}, nil
}

// TestConnection implements transcribe.Provider. The whisper.cpp server has
// no dedicated health route; any HTTP response proves it is reachable.
func (p *Provider) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: connection test: %v: %w", err, transcribe.ErrUnavailable)
	}
	resp.Body.Close()
	return nil
}
