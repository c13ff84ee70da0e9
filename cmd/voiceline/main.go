// Command voiceline is the main entry point for the Voiceline voice assistant
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

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/averro/voiceline/internal/app"
	// Assistant kinds register themselves in init.
	_ "github.com/averro/voiceline/internal/assistant/barista"
	_ "github.com/averro/voiceline/internal/assistant/wellness"
	"github.com/averro/voiceline/internal/config"
	"github.com/averro/voiceline/internal/observe"
	"github.com/averro/voiceline/internal/resilience"
	"github.com/averro/voiceline/pkg/audio"
	audiomock "github.com/averro/voiceline/pkg/audio/mock"
	"github.com/averro/voiceline/pkg/audio/wavfile"
	"github.com/averro/voiceline/pkg/provider/denoise"
	"github.com/averro/voiceline/pkg/provider/denoise/gate"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/provider/llm/anyllm"
	oaillm "github.com/averro/voiceline/pkg/provider/llm/openai"
	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/provider/stt/deepgram"
	"github.com/averro/voiceline/pkg/provider/stt/whisper"
	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/provider/tts/murf"
	"github.com/averro/voiceline/pkg/provider/vad"
	"github.com/averro/voiceline/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Local development keys; absence is fine in production.
	_ = godotenv.Load(".env.local")

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiceline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiceline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voiceline starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voiceline",
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Voiceline. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":     {"gemini", "openai", "anthropic", "ollama", "mistral", "groq"},
	"stt":     {"deepgram", "whisper"},
	"tts":     {"murf"},
	"vad":     {"energy"},
	"denoise": {"gate"},
	"audio":   {"wavfile", "mock"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// gemini, anthropic, mistral, and groq all share the same
	// pattern: optional APIKey + optional BaseURL, routed through any-llm.
	for _, providerName := range []string{
		"gemini", "anthropic", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// openai uses the native SDK for full tool-calling support.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("murf", func(entry config.ProviderEntry) (tts.Provider, error) {
		rate := optInt(entry.Options, "sample_rate")
		if rate == 0 {
			rate = 24000
		}
		return murf.New(entry.APIKey, murf.WithSampleRate(rate))
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		speech := optFloat(entry.Options, "speech_threshold")
		silence := optFloat(entry.Options, "silence_threshold")
		if speech == 0 && silence == 0 {
			return energy.New(), nil
		}
		if speech == 0 {
			speech = 0.5
		}
		if silence == 0 {
			silence = 0.35
		}
		return energy.New(energy.WithThresholds(speech, silence)), nil
	})

	// ── Denoise ───────────────────────────────────────────────────────────────

	reg.RegisterDenoise("gate", func(entry config.ProviderEntry) (denoise.Processor, error) {
		var opts []gate.Option
		if th := optFloat(entry.Options, "threshold"); th != 0 {
			opts = append(opts, gate.WithThreshold(th))
		}
		if att := optFloat(entry.Options, "attenuation"); att != 0 {
			opts = append(opts, gate.WithAttenuation(att))
		}
		return gate.New(opts...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("wavfile", func(entry config.ProviderEntry) (audio.Platform, error) {
		var opts []wavfile.Option
		if out := optString(entry.Options, "output_path"); out != "" {
			opts = append(opts, wavfile.WithOutputPath(out))
		}
		if ms := optInt(entry.Options, "frame_ms"); ms != 0 {
			opts = append(opts, wavfile.WithFrameMs(ms))
		}
		if optBool(entry.Options, "realtime") {
			opts = append(opts, wavfile.WithRealtime(true))
		}
		return wavfile.New(opts...), nil
	})

	reg.RegisterAudio("mock", func(config.ProviderEntry) (audio.Platform, error) {
		return &audiomock.Platform{}, nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)

		if fb := cfg.Providers.LLM.Fallback; fb != nil {
			fbp, err := reg.CreateLLM(*fb)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
			}
			failover := resilience.NewLLMFailover(name, p, resilience.BreakerConfig{})
			failover.Add(fb.Name, fbp)
			ps.LLM = failover
			slog.Info("provider failover armed", "kind", "llm", "primary", name, "fallback", fb.Name)
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)

		if fb := cfg.Providers.STT.Fallback; fb != nil {
			fbp, err := reg.CreateSTT(*fb)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
			}
			failover := resilience.NewSTTFailover(name, p, resilience.BreakerConfig{})
			failover.Add(fb.Name, fbp)
			ps.STT = failover
			slog.Info("provider failover armed", "kind", "stt", "primary", name, "fallback", fb.Name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)

		if fb := cfg.Providers.TTS.Fallback; fb != nil {
			fbp, err := reg.CreateTTS(*fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			failover := resilience.NewTTSFailover(name, p, resilience.BreakerConfig{})
			failover.Add(fb.Name, fbp)
			ps.TTS = failover
			slog.Info("provider failover armed", "kind", "tts", "primary", name, "fallback", fb.Name)
		}
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		ps.VAD = p
		slog.Info("provider created", "kind", "vad", "name", name)
	}

	if name := cfg.Providers.Denoise.Name; name != "" {
		p, err := reg.CreateDenoise(cfg.Providers.Denoise)
		if err != nil {
			return nil, fmt.Errorf("create denoise provider %q: %w", name, err)
		}
		ps.Denoise = p
		slog.Info("provider created", "kind", "denoise", "name", name)
	}

	if name := cfg.Audio.Name; name != "" {
		p, err := reg.CreateAudio(cfg.Audio)
		if err != nil {
			return nil, fmt.Errorf("create audio platform %q: %w", name, err)
		}
		ps.Audio = p
		slog.Info("provider created", "kind", "audio", "name", name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Voiceline — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Denoise", cfg.Providers.Denoise.Name, "")
	printProvider("Audio", cfg.Audio.Name, "")
	fmt.Printf("║  Assistants      : %-19d ║\n", len(cfg.Assistants))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.Tools.MCPServers))
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
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an int value, tolerating the float64 that YAML sometimes
// decodes numbers into.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func optBool(opts map[string]any, key string) bool {
	if opts == nil {
		return false
	}
	b, _ := opts[key].(bool)
	return b
}
