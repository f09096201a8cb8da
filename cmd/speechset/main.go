// Command speechset is the main entry point for the speech dataset builder
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/speechset/speechset/internal/app"
	"github.com/speechset/speechset/internal/config"
	"github.com/speechset/speechset/internal/observe"
	"github.com/speechset/speechset/internal/resilience"
	"github.com/speechset/speechset/pkg/provider/textgen"
	textgenanyllm "github.com/speechset/speechset/pkg/provider/textgen/anyllm"
	textgenoai "github.com/speechset/speechset/pkg/provider/textgen/openai"
	"github.com/speechset/speechset/pkg/provider/transcribe"
	transcribegemini "github.com/speechset/speechset/pkg/provider/transcribe/gemini"
	transcribeoai "github.com/speechset/speechset/pkg/provider/transcribe/openai"
	"github.com/speechset/speechset/pkg/provider/transcribe/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "speechset: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "speechset: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("speechset starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "speechset",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TranscribeChanged || d.TextgenChanged {
			ps, err := buildProviders(new, reg)
			if err != nil {
				slog.Error("provider reload failed, keeping old providers", "err", err)
				return
			}
			application.SetProviders(ps)
			slog.Info("providers reloaded",
				"transcribe", new.Providers.Transcribe.Name,
				"textgen", new.Providers.Textgen.Name,
			)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := obsShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscribe("openai", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []transcribeoai.Option
		if entry.Model != "" {
			opts = append(opts, transcribeoai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, transcribeoai.WithBaseURL(entry.BaseURL))
		}
		return transcribeoai.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscribe("gemini", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []transcribegemini.Option
		if entry.Model != "" {
			opts = append(opts, transcribegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, transcribegemini.WithBaseURL(entry.BaseURL))
		}
		return transcribegemini.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscribe("whisper", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscribe("whisper-native", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Text generation ───────────────────────────────────────────────────────

	reg.RegisterTextgen("openai", func(entry config.ProviderEntry) (textgen.Provider, error) {
		var opts []textgenoai.Option
		if entry.Model != "" {
			opts = append(opts, textgenoai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, textgenoai.WithBaseURL(entry.BaseURL))
		}
		return textgenoai.New(entry.APIKey, opts...)
	})

	// anthropic, gemini, deepseek, mistral and groq all share the same
	// pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterTextgen(providerName, func(entry config.ProviderEntry) (textgen.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return textgenanyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTextgen("ollama", func(entry config.ProviderEntry) (textgen.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return textgenanyllm.NewOllama(entry.Model, opts...)
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Transcription fallbacks are wrapped behind per-provider circuit
// breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Transcribe.Name; name != "" {
		p, err := reg.CreateTranscribe(cfg.Providers.Transcribe)
		if err != nil {
			return nil, fmt.Errorf("create transcribe provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "transcribe", "name", name)

		if len(cfg.Providers.TranscribeFallbacks) > 0 {
			fb := resilience.NewFallbackTranscriber(p, resilience.BreakerConfig{})
			for _, entry := range cfg.Providers.TranscribeFallbacks {
				backup, err := reg.CreateTranscribe(entry)
				if err != nil {
					return nil, fmt.Errorf("create fallback transcribe provider %q: %w", entry.Name, err)
				}
				fb.AddFallback(backup)
				slog.Info("provider created", "kind", "transcribe-fallback", "name", entry.Name)
			}
			ps.Transcriber = fb
		} else {
			ps.Transcriber = p
		}
	}

	if name := cfg.Providers.Textgen.Name; name != "" {
		p, err := reg.CreateTextgen(cfg.Providers.Textgen)
		if err != nil {
			return nil, fmt.Errorf("create textgen provider %q: %w", name, err)
		}
		ps.Generator = p
		slog.Info("provider created", "kind", "textgen", "name", name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        speechset — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Transcribe", cfg.Providers.Transcribe.Name, cfg.Providers.Transcribe.Model)
	printProvider("Textgen", cfg.Providers.Textgen.Name, cfg.Providers.Textgen.Model)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", len(cfg.Providers.TranscribeFallbacks))
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Storage         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Storage         : %-19s ║\n", "file: "+truncate(cfg.Storage.DataDir, 13))
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value, 19))
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
