package openai

import (
	"testing"
	"time"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected an error for an empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", p.Name())
	}
}

func TestNew_WithModel(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", WithModel("gpt-4.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "gpt-4.1" {
		t.Errorf("model = %q, want the override", p.model)
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := &config{model: defaultModel}
	for _, o := range []Option{
		WithModel("gpt-4.1"),
		WithBaseURL("http://localhost:4000/v1"),
		WithTimeout(30 * time.Second),
	} {
		o(cfg)
	}

	if cfg.model != "gpt-4.1" {
		t.Errorf("model = %q, want gpt-4.1", cfg.model)
	}
	if cfg.baseURL != "http://localhost:4000/v1" {
		t.Errorf("baseURL = %q, want the override", cfg.baseURL)
	}
	if cfg.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.timeout)
	}
}

func TestWithModel_EmptyIgnored(t *testing.T) {
	t.Parallel()
	cfg := &config{model: defaultModel}
	WithModel("")(cfg)
	if cfg.model != defaultModel {
		t.Errorf("model = %q, an empty override must keep the default", cfg.model)
	}
}
