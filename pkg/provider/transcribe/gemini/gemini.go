// Package gemini provides a transcription provider backed by the Google AI
// Studio generateContent endpoint, which accepts inline audio.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// Compile-time assertion that Provider satisfies transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash-lite"
	defaultTimeout = 2 * time.Minute
)

// transcriptionPrompt asks the model for the bare transcript; the label it
// sometimes prepends anyway is stripped from the reply.
const transcriptionPrompt = "Transcribe this audio recording. Return only the spoken text, with no commentary."

// labelRE matches the "Transcription:" prefix some model replies carry.
var labelRE = regexp.MustCompile(`^\s*Transcription:\s*`)

// Provider implements transcribe.Provider against the Google AI Studio API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the default API base URL.
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

// New constructs a Google AI Studio transcription provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
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
func (p *Provider) Name() string { return "gemini" }

// Request/response wire shapes for generateContent.

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Transcribe implements transcribe.Provider. The audio travels inline as
// base64 next to the transcription prompt.
func (p *Provider) Transcribe(ctx context.Context, clip transcribe.Clip) (transcribe.Result, error) {
	mime := clip.MIME
	if mime == "" {
		mime = "audio/wav"
	}
	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: transcriptionPrompt},
				{InlineData: &inlineData{
					MimeType: mime,
					Data:     base64.StdEncoding.EncodeToString(clip.Data),
				}},
			},
		}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("gemini: transcription request: %v: %w", err, transcribe.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transcribe.Result{}, apiError("transcription", resp)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return transcribe.Result{}, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return transcribe.Result{}, fmt.Errorf("gemini: empty candidates in response")
	}

	text := gr.Candidates[0].Content.Parts[0].Text
	text = strings.TrimSpace(labelRE.ReplaceAllString(text, ""))
	return transcribe.Result{Text: text, Model: p.model}, nil
}

// TestConnection implements transcribe.Provider with a GET on the models
// listing, which validates the key cheaply.
func (p *Provider) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini: connection test: %v: %w", err, transcribe.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError("connection test", resp)
	}
	return nil
}

func apiError(action string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gemini: %s: http %d: %s: %w", action, resp.StatusCode, detail, transcribe.ErrUnavailable)
	}
	return fmt.Errorf("gemini: %s: http %d: %s", action, resp.StatusCode, detail)
}
