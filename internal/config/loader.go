package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/tools"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"gemini", "openai", "ollama", "anthropic", "mistral", "groq"},
	"stt":     {"deepgram", "whisper"},
	"tts":     {"murf"},
	"vad":     {"energy"},
	"denoise": {"gate"},
	"audio":   {"wavfile", "mock"},
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
// `${VAR}` references anywhere in the document are expanded from the
// environment before decoding, so API keys can live in .env.local instead of
// the config file.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = expandEnv(raw)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} references with environment values. Bare $VAR is
// left alone so YAML content with dollar signs survives.
func expandEnv(raw []byte) []byte {
	return []byte(os.Expand(string(raw), func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		// Preserve unresolved references so validation errors name them.
		return "${" + key + "}"
	}))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("denoise", cfg.Providers.Denoise.Name)
	validateProviderName("audio", cfg.Audio.Name)

	for _, fb := range []struct {
		kind  string
		entry *ProviderEntry
	}{
		{"llm", cfg.Providers.LLM.Fallback},
		{"stt", cfg.Providers.STT.Fallback},
		{"tts", cfg.Providers.TTS.Fallback},
	} {
		if fb.entry == nil {
			continue
		}
		validateProviderName(fb.kind, fb.entry.Name)
		if fb.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallback.name is required when a fallback is configured", fb.kind))
		}
		if fb.entry.Fallback != nil {
			errs = append(errs, fmt.Errorf("providers.%s.fallback must not nest another fallback", fb.kind))
		}
	}
	for _, fb := range []struct {
		kind  string
		entry *ProviderEntry
	}{
		{"vad", cfg.Providers.VAD.Fallback},
		{"denoise", cfg.Providers.Denoise.Fallback},
		{"audio", cfg.Audio.Fallback},
	} {
		if fb.entry != nil {
			errs = append(errs, fmt.Errorf("providers.%s does not support a fallback", fb.kind))
		}
	}

	if len(cfg.Assistants) == 0 {
		errs = append(errs, errors.New("assistants: at least one assistant is required"))
	}
	for _, required := range []struct{ kind, name string }{
		{"llm", cfg.Providers.LLM.Name},
		{"stt", cfg.Providers.STT.Name},
		{"tts", cfg.Providers.TTS.Name},
		{"vad", cfg.Providers.VAD.Name},
	} {
		if required.name == "" && len(cfg.Assistants) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", required.kind))
		}
	}

	namesSeen := make(map[string]int, len(cfg.Assistants))
	kinds := assistant.Kinds()
	for i, a := range cfg.Assistants {
		prefix := fmt.Sprintf("assistants[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[a.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of assistants[%d]", prefix, a.Name, prev))
			}
			namesSeen[a.Name] = i
		}
		if a.Kind == "" {
			errs = append(errs, fmt.Errorf("%s.kind is required; registered kinds: %v", prefix, kinds))
		} else if !slices.Contains(kinds, a.Kind) {
			errs = append(errs, fmt.Errorf("%s.kind %q is not registered; registered kinds: %v", prefix, a.Kind, kinds))
		}
		if a.DataFile == "" {
			errs = append(errs, fmt.Errorf("%s.data_file is required", prefix))
		}
		if a.Voice.SpeedFactor != 0 && (a.Voice.SpeedFactor < 0.5 || a.Voice.SpeedFactor > 2.0) {
			errs = append(errs, fmt.Errorf("%s.voice.speed_factor %.2f is out of range [0.5, 2.0]", prefix, a.Voice.SpeedFactor))
		}
		if a.Voice.PitchShift < -10 || a.Voice.PitchShift > 10 {
			errs = append(errs, fmt.Errorf("%s.voice.pitch_shift %.2f is out of range [-10, 10]", prefix, a.Voice.PitchShift))
		}
	}

	if cfg.Turn.SilenceHoldMs < 0 {
		errs = append(errs, fmt.Errorf("turn.silence_hold_ms %d must not be negative", cfg.Turn.SilenceHoldMs))
	}
	if cfg.Turn.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("turn.min_speech_ms %d must not be negative", cfg.Turn.MinSpeechMs))
	}

	if cfg.History.Path != "" && cfg.History.PostgresDSN != "" {
		slog.Warn("both history.path and history.postgres_dsn are set; postgres wins")
	}

	for i, srv := range cfg.Tools.MCPServers {
		prefix := fmt.Sprintf("tools.mcp_servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == tools.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == tools.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
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
