// Package app wires all Voiceline subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the sessions until the context is cancelled,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithEngineBuilder, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/config"
	"github.com/averro/voiceline/internal/engine"
	"github.com/averro/voiceline/internal/engine/pipeline"
	"github.com/averro/voiceline/internal/health"
	"github.com/averro/voiceline/internal/history"
	"github.com/averro/voiceline/internal/observe"
	"github.com/averro/voiceline/internal/session"
	"github.com/averro/voiceline/internal/tools"
	"github.com/averro/voiceline/internal/turndetect"
	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/provider/denoise"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/provider/vad"
	"github.com/averro/voiceline/pkg/types"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM     llm.Provider
	STT     stt.Provider
	TTS     tts.Provider
	VAD     vad.Engine
	Denoise denoise.Processor
	Audio   audio.Platform
}

// runner pairs one live session with its audio connection.
type runner struct {
	name string
	sess *session.Session
	conn audio.Connection
}

// App owns all subsystem lifetimes and orchestrates the voice sessions.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store      history.Store
	tools      *tools.Registry
	metrics    *observe.Metrics
	httpServer *http.Server
	runners    []*runner

	buildEngine func(ac config.AssistantConfig) engine.VoiceEngine

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithToolRegistry injects a tool registry instead of creating one from config.
func WithToolRegistry(r *tools.Registry) Option {
	return func(a *App) { a.tools = r }
}

// WithMetrics injects a metrics set instead of using the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithEngineBuilder replaces the default pipeline engine construction.
// The builder is called once per configured assistant.
func WithEngineBuilder(b func(ac config.AssistantConfig) engine.VoiceEngine) Option {
	return func(a *App) { a.buildEngine = b }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: history store connection,
// tool server registration, per-assistant engine construction, audio
// connection, and session assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := requireProviders(providers); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Tool registry ─────────────────────────────────────────────────
	if err := a.initTools(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 3. Assistants + sessions ─────────────────────────────────────────
	if err := a.initSessions(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init sessions: %w", err)
	}

	// ── 4. Health endpoint ───────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// requireProviders checks the slots every session depends on.
func requireProviders(p *Providers) error {
	if p == nil {
		return errors.New("providers are required")
	}
	var errs []error
	if p.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if p.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if p.Audio == nil {
		errs = append(errs, errors.New("audio platform is required"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory selects the transcript store backend: an injected store wins,
// then Postgres when a DSN is set, then a JSONL file, then memory.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	switch {
	case a.cfg.History.PostgresDSN != "":
		store, err := history.ConnectPostgres(ctx, a.cfg.History.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		slog.Info("transcript store: postgres")
	case a.cfg.History.Path != "":
		a.store = history.NewFileStore(a.cfg.History.Path)
		slog.Info("transcript store: file", "path", a.cfg.History.Path)
	default:
		a.store = history.NewMemStore()
		slog.Info("transcript store: memory (transcripts are lost on exit)")
	}

	a.closers = append(a.closers, a.store.Close)
	return nil
}

// initTools sets up the tool registry and connects configured MCP servers.
func (a *App) initTools(ctx context.Context) error {
	if a.tools == nil {
		a.tools = tools.NewRegistry()
	}
	a.closers = append(a.closers, a.tools.Close)

	for _, srv := range a.cfg.Tools.MCPServers {
		serverCfg := tools.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := a.tools.ConnectServer(ctx, serverCfg); err != nil {
			return fmt.Errorf("connect mcp server %q: %w", srv.Name, err)
		}
		slog.Info("connected MCP server", "name", srv.Name)
	}

	return nil
}

// initSessions builds one assistant, engine, audio connection, and session
// per configured assistant.
func (a *App) initSessions(ctx context.Context) error {
	for i, ac := range a.cfg.Assistants {
		asst, err := assistant.New(ac.Kind, assistant.Params{
			Name:              ac.Name,
			DataFile:          ac.DataFile,
			Greeting:          ac.Greeting,
			ExtraInstructions: ac.ExtraInstructions,
		})
		if err != nil {
			return fmt.Errorf("build assistant %q (index %d): %w", ac.Name, i, err)
		}

		var eng engine.VoiceEngine
		if a.buildEngine != nil {
			eng = a.buildEngine(ac)
		} else {
			eng = pipeline.New(a.providers.LLM, a.providers.TTS, configVoiceProfile(ac.Voice))
		}
		a.closers = append(a.closers, eng.Close)

		conn, err := a.providers.Audio.Connect(ctx, ac.Target)
		if err != nil {
			return fmt.Errorf("connect audio for %q: %w", ac.Name, err)
		}

		sess, err := session.New(session.Config{
			ID:   ac.Name,
			Turn: turnConfig(a.cfg.Turn),
		}, session.Deps{
			Conn:      conn,
			Engine:    eng,
			Assistant: asst,
			STT:       a.providers.STT,
			VAD:       a.providers.VAD,
			Denoise:   a.providers.Denoise,
			Tools:     a.tools,
			Store:     a.store,
			Metrics:   a.metrics,
		})
		if err != nil {
			conn.Disconnect() //nolint:errcheck
			return fmt.Errorf("create session %q: %w", ac.Name, err)
		}

		name := ac.Name
		sess.OnShutdown(func(context.Context) {
			slog.Info("session usage", "session", name, "usage", sess.Usage())
		})

		a.runners = append(a.runners, &runner{name: ac.Name, sess: sess, conn: conn})
		slog.Info("assembled session", "name", ac.Name, "kind", ac.Kind, "target", ac.Target)
	}

	return nil
}

// initHealth builds the health/metrics HTTP server when an address is set.
// Readiness probes the transcript store with a short read.
func (a *App) initHealth() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	store := a.store
	h := health.New(health.Checker{
		Name: "history",
		Check: func(ctx context.Context) error {
			_, err := store.Entries(ctx, "healthcheck", 1)
			return err
		},
	})
	a.httpServer = health.NewServer(a.cfg.Server.ListenAddr, h, a.metrics)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes every session plus the health server and blocks until ctx is
// cancelled or a session fails. A session ending because its audio input
// closed is a normal exit, not a failure.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		srv := a.httpServer
		g.Go(func() error {
			slog.Info("health server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	for _, r := range a.runners {
		g.Go(func() error {
			if err := r.sess.Run(ctx); err != nil {
				return fmt.Errorf("session %q: %w", r.name, err)
			}
			return nil
		})
	}

	slog.Info("app running", "sessions", len(a.runners))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Disconnect audio first so sessions see their input close.
		for _, r := range a.runners {
			if err := r.conn.Disconnect(); err != nil {
				slog.Warn("audio disconnect error", "session", r.name, "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs accumulated closers after a failed New. Errors are logged,
// not returned: the caller already has the init error.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("cleanup error", "err", err)
		}
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// turnConfig converts a config.TurnConfig to turn detector settings.
func turnConfig(tc config.TurnConfig) turndetect.Config {
	return turndetect.Config{
		SilenceHoldMs: tc.SilenceHoldMs,
		MinSpeechMs:   tc.MinSpeechMs,
	}
}

// configVoiceProfile converts a config.VoiceConfig to types.VoiceProfile.
func configVoiceProfile(vc config.VoiceConfig) types.VoiceProfile {
	return types.VoiceProfile{
		ID:          vc.VoiceID,
		Style:       vc.Style,
		PitchShift:  vc.PitchShift,
		SpeedFactor: vc.SpeedFactor,
	}
}
