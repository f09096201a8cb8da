// Package app wires all speechset subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject collaborators via functional options (WithKV,
// WithSaverOptions). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/speechset/speechset/internal/ai"
	"github.com/speechset/speechset/internal/config"
	"github.com/speechset/speechset/internal/dataset"
	"github.com/speechset/speechset/internal/format"
	"github.com/speechset/speechset/internal/health"
	"github.com/speechset/speechset/internal/library"
	"github.com/speechset/speechset/internal/persist"
	"github.com/speechset/speechset/internal/server"
	"github.com/speechset/speechset/internal/settings"
	"github.com/speechset/speechset/internal/transcript"
	"github.com/speechset/speechset/pkg/provider/textgen"
	"github.com/speechset/speechset/pkg/provider/transcribe"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Transcriber transcribe.Provider
	Generator   textgen.Provider
}

// App owns all subsystem lifetimes behind the dataset builder server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	kv        persist.KV
	lib       *library.Library
	store     *transcript.MemStore
	settings  *settings.Manager
	saver     *transcript.Saver
	ai        *ai.Service
	srv       *server.Server
	httpSrv   *http.Server
	saverOpts []transcript.SaverOption

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKV injects a persistence store instead of creating one from config.
func WithKV(kv persist.KV) Option {
	return func(a *App) { a.kv = kv }
}

// WithSaverOptions forwards options to the transcript autosaver, e.g. a fake
// clock.
func WithSaverOptions(opts ...transcript.SaverOption) Option {
	return func(a *App) { a.saverOpts = opts }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: persistence setup,
// settings and transcript loading, and the HTTP server.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	if a.providers == nil {
		a.providers = &Providers{}
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Persistence ───────────────────────────────────────────────────
	if err := a.initPersistence(ctx); err != nil {
		return nil, fmt.Errorf("app: init persistence: %w", err)
	}

	// ── 2. Settings ──────────────────────────────────────────────────────
	if err := a.initSettings(ctx); err != nil {
		return nil, fmt.Errorf("app: init settings: %w", err)
	}

	// ── 3. Transcript store + autosave ───────────────────────────────────
	a.store = transcript.NewMemStore(a.kv)
	if err := a.store.Load(ctx); err != nil {
		return nil, fmt.Errorf("app: load transcripts: %w", err)
	}
	a.saver = transcript.NewSaver(a.store, a.saverOpts...)
	slog.Info("transcripts loaded", "count", a.store.Len())

	// ── 4. Working set + AI ──────────────────────────────────────────────
	a.lib = library.New()
	a.ai = ai.NewService(a.store, a.lib, a.settings)
	a.ai.SetTranscriber(a.providers.Transcriber)
	a.ai.SetGenerator(a.providers.Generator)

	// ── 5. HTTP server ───────────────────────────────────────────────────
	a.srv = server.New(server.Deps{
		Library:   a.lib,
		Store:     a.store,
		Settings:  a.settings,
		Importer:  dataset.NewImporter(a.store, a.lib, a.settings),
		Assembler: dataset.NewAssembler(a.store, a.lib, a.settings),
		AI:        a.ai,
		Saver:     a.saver,
		Health:    health.New(a.healthCheckers()...),
	})
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.srv.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initPersistence opens the configured KV store. Postgres wins when a DSN is
// set; otherwise a JSON file store under the data dir.
func (a *App) initPersistence(ctx context.Context) error {
	if a.kv != nil {
		return nil // injected
	}

	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		store, err := persist.NewPostgresStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.kv = store
		slog.Info("persistence ready", "backend", "postgres")
	} else {
		store, err := persist.NewFileStore(a.cfg.Storage.DataDir)
		if err != nil {
			return err
		}
		a.kv = store
		slog.Info("persistence ready", "backend", "file", "dir", a.cfg.Storage.DataDir)
	}

	a.closers = append(a.closers, func(context.Context) error {
		return a.kv.Close()
	})
	return nil
}

// initSettings loads the persisted settings document. Config defaults apply
// only on a fresh store with no persisted document.
func (a *App) initSettings(ctx context.Context) error {
	a.settings = settings.NewManager(a.kv)

	fresh := false
	if a.kv != nil {
		_, err := a.kv.Get(ctx, settings.StorageKey)
		fresh = errors.Is(err, persist.ErrNotFound)
	}

	if err := a.settings.Load(ctx); err != nil {
		return err
	}
	if fresh {
		a.applyConfigDefaults(ctx)
	}
	return nil
}

// applyConfigDefaults seeds the settings document from the config file's
// defaults section.
func (a *App) applyConfigDefaults(ctx context.Context) {
	d := a.cfg.Defaults
	doc := a.settings.Document()

	if d.TranscriptFormat != "" {
		doc.TranscriptFormat = format.ID(d.TranscriptFormat)
	}
	if d.NormalizeText != nil {
		doc.LJSpeech.NormalizeText = *d.NormalizeText
	}
	if d.PreserveNonLatin != nil {
		doc.LJSpeech.PreserveNonLatin = *d.PreserveNonLatin
	}

	if err := a.settings.Update(ctx, doc); err != nil {
		slog.Warn("failed to apply config defaults", "error", err)
	}
}

// healthCheckers builds the readiness checks for /readyz.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "storage",
			Check: func(ctx context.Context) error {
				_, err := a.kv.Get(ctx, settings.StorageKey)
				if errors.Is(err, persist.ErrNotFound) {
					return nil // reachable, just empty
				}
				return err
			},
		},
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the full HTTP handler, for serving or tests.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}

// AI returns the AI service so provider hot-reload can swap implementations.
func (a *App) AI() *ai.Service {
	return a.ai
}

// SetProviders swaps the AI providers, e.g. after a config reload.
func (a *App) SetProviders(ps *Providers) {
	if ps == nil {
		ps = &Providers{}
	}
	a.ai.SetTranscriber(ps.Transcriber)
	a.ai.SetGenerator(ps.Generator)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, flushes pending transcript writes, and
// tears down subsystems in reverse-init order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	a.stopOnce.Do(func() {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}

		if err := a.saver.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush transcripts: %w", err))
		}
		if err := a.settings.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save settings: %w", err))
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("shutdown interrupted: %w", ctx.Err()))
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}
