package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/speechset/speechset/internal/format"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcribe": {"openai", "gemini", "whisper", "whisper-native"},
	"textgen":    {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Storage.DataDir != "" && cfg.Storage.PostgresDSN != "" {
		slog.Warn("both storage.data_dir and storage.postgres_dsn are set; postgres takes precedence")
	}

	validateProviderName("transcribe", cfg.Providers.Transcribe.Name)
	validateProviderName("textgen", cfg.Providers.Textgen.Name)
	for i, entry := range cfg.Providers.TranscribeFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcribe_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("transcribe", entry.Name)
	}
	if len(cfg.Providers.TranscribeFallbacks) > 0 && cfg.Providers.Transcribe.Name == "" {
		errs = append(errs, errors.New("providers.transcribe_fallbacks requires a primary providers.transcribe"))
	}

	if cfg.Providers.Transcribe.Name == "" && cfg.Providers.Textgen.Name == "" {
		slog.Warn("no AI providers configured; transcription and normalization endpoints will be unavailable")
	}

	if cfg.Defaults.TranscriptFormat != "" && !format.ID(cfg.Defaults.TranscriptFormat).IsValid() {
		errs = append(errs, fmt.Errorf("defaults.transcript_format %q is invalid; valid values: default, ljspeech, commonvoice, custom", cfg.Defaults.TranscriptFormat))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
