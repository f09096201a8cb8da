package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/speechset/speechset/internal/config"
	"github.com/speechset/speechset/pkg/provider/textgen"
	textgenmock "github.com/speechset/speechset/pkg/provider/textgen/mock"
	"github.com/speechset/speechset/pkg/provider/transcribe"
	transcribemock "github.com/speechset/speechset/pkg/provider/transcribe/mock"
)

// ── file loading ─────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

storage:
  data_dir: ./data

providers:
  transcribe:
    name: openai
    api_key: sk-test
    model: whisper-1
  textgen:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  transcribe_fallbacks:
    - name: whisper
      base_url: http://localhost:9000
    - name: whisper-native
      options:
        model_path: /models/ggml-base.en.bin

defaults:
  transcript_format: default
`

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Storage.DataDir != "./data" {
		t.Errorf("data_dir = %q, want ./data", cfg.Storage.DataDir)
	}
	if got := len(cfg.Providers.TranscribeFallbacks); got != 2 {
		t.Fatalf("fallback count = %d, want 2", got)
	}
	opts := cfg.Providers.TranscribeFallbacks[1].Options
	if opts["model_path"] != "/models/ggml-base.en.bin" {
		t.Errorf("options.model_path = %v, want the model file", opts["model_path"])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("LogLevel(%q).IsValid() = false, want true", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`LogLevel("verbose").IsValid() = true, want false`)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateTranscribe(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterTranscribe("mock", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		return &transcribemock.Provider{NameValue: entry.Model}, nil
	})

	p, err := r.CreateTranscribe(config.ProviderEntry{Name: "mock", Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "test-model" {
		t.Errorf("factory did not receive the entry, Name() = %q", p.Name())
	}
}

func TestRegistry_CreateTextgen(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterTextgen("mock", func(config.ProviderEntry) (textgen.Provider, error) {
		return &textgenmock.Provider{}, nil
	})

	p, err := r.CreateTextgen(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.TestConnection(context.Background()); err != nil {
		t.Errorf("mock TestConnection: %v", err)
	}
}

func TestRegistry_UnregisteredProvider(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	if _, err := r.CreateTranscribe(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("transcribe err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTextgen(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("textgen err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterTextgen("mock", func(config.ProviderEntry) (textgen.Provider, error) {
		return &textgenmock.Provider{NameValue: "first"}, nil
	})
	r.RegisterTextgen("mock", func(config.ProviderEntry) (textgen.Provider, error) {
		return &textgenmock.Provider{NameValue: "second"}, nil
	})

	p, err := r.CreateTextgen(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "second" {
		t.Errorf("Name() = %q, want the later registration", p.Name())
	}
}
