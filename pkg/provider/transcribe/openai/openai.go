// Package openai provides a transcription provider backed by the OpenAI
// audio/transcriptions endpoint (Whisper).
package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
	defaultTimeout = 2 * time.Minute
)

// Provider implements transcribe.Provider against the OpenAI REST API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the default whisper-1 model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the default API base URL, e.g. for a proxy.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// New constructs an OpenAI transcription provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements transcribe.Provider.
func (p *Provider) Name() string { return "openai" }

// transcriptionResponse is the JSON body of a successful transcription call.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements transcribe.Provider. It posts the clip as multipart
// form data to the audio/transcriptions endpoint.
func (p *Provider) Transcribe(ctx context.Context, clip transcribe.Clip) (transcribe.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", p.model); err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: build form: %w", err)
	}
	if clip.Language != "" {
		if err := mw.WriteField("language", clip.Language); err != nil {
			return transcribe.Result{}, fmt.Errorf("openai: build form: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", clip.FileName)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: build form: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: transcription request: %v: %w", err, transcribe.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transcribe.Result{}, apiError("transcription", resp)
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: decode response: %w", err)
	}
	return transcribe.Result{Text: strings.TrimSpace(tr.Text), Model: p.model}, nil
}

// TestConnection implements transcribe.Provider with a GET on the models
// endpoint, which validates the key without consuming audio quota.
func (p *Provider) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: connection test: %v: %w", err, transcribe.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError("connection test", resp)
	}
	return nil
}

// apiError converts a non-200 response into an error, marking server-side
// failures as retryable.
func apiError(action string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("openai: %s: http %d: %s: %w", action, resp.StatusCode, detail, transcribe.ErrUnavailable)
	}
	return fmt.Errorf("openai: %s: http %d: %s", action, resp.StatusCode, detail)
}
