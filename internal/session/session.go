// Package session runs one assistant conversation over a live audio
// connection.
//
// A Session owns the full capture path — denoise, voice activity detection,
// turn detection, streaming STT — and hands each completed user turn to the
// voice engine, streaming the engine's reply audio back out on the
// connection. Conversation history accumulates inside the session and is
// replayed to the engine on every turn.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/engine"
	"github.com/averro/voiceline/internal/history"
	"github.com/averro/voiceline/internal/observe"
	"github.com/averro/voiceline/internal/tools"
	"github.com/averro/voiceline/internal/turndetect"
	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/provider/denoise"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/provider/vad"
	"github.com/averro/voiceline/pkg/types"
)

const (
	defaultSampleRate       = 16000
	defaultOutputSampleRate = 24000
	defaultFrameSizeMs      = 20

	// defaultGreetingDelay gives the transport a moment to settle before the
	// opening line plays.
	defaultGreetingDelay = time.Second

	// finalWait is how long after end-of-turn we wait for the STT provider
	// to commit its final transcript.
	finalWait = 1500 * time.Millisecond

	finalPollInterval = 50 * time.Millisecond
)

// Config holds per-session parameters.
type Config struct {
	// ID identifies the session in logs and the history store.
	ID string

	// SampleRate of captured input audio in Hz. Default 16000.
	SampleRate int

	// OutputSampleRate of synthesized audio in Hz. Default 24000.
	OutputSampleRate int

	// Channels of input audio. Default 1.
	Channels int

	// FrameSizeMs is the capture frame duration. Default 20.
	FrameSizeMs int

	// Language is the BCP-47 recognition language tag, empty for auto.
	Language string

	// Keywords biases recognition toward domain vocabulary.
	Keywords []types.KeywordBoost

	// Turn configures end-of-turn detection.
	Turn turndetect.Config

	// GreetingDelay is the pause before the opening line. Default 1s.
	GreetingDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = defaultOutputSampleRate
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameSizeMs == 0 {
		c.FrameSizeMs = defaultFrameSizeMs
	}
	if c.GreetingDelay == 0 {
		c.GreetingDelay = defaultGreetingDelay
	}
	return c
}

// Deps bundles everything a Session orchestrates. Conn, Engine, Assistant,
// STT, and VAD are required; the rest are optional.
type Deps struct {
	Conn      audio.Connection
	Engine    engine.VoiceEngine
	Assistant assistant.Assistant
	STT       stt.Provider
	VAD       vad.Engine

	// Denoise cleans captured frames before VAD. Nil skips the stage.
	Denoise denoise.Processor

	// Tools supplies tool definitions and execution. Nil disables tools.
	Tools *tools.Registry

	// Store persists the transcript. Nil disables persistence.
	Store history.Store

	// Metrics records pipeline telemetry. Nil falls back to the package
	// default instruments.
	Metrics *observe.Metrics
}

// Session is one live conversation. Create with New, drive with Run.
type Session struct {
	cfg  Config
	deps Deps

	instructions string
	messages     []types.Message

	usage observe.UsageCollector

	mu            sync.Mutex
	pendingFinals []string
	shutdownCbs   []func(ctx context.Context)
	closed        bool
}

// New validates deps and prepares a session. The assistant's tools are
// registered with the engine here so the first turn already has them.
func New(cfg Config, deps Deps) (*Session, error) {
	switch {
	case deps.Conn == nil:
		return nil, errors.New("session: connection is required")
	case deps.Engine == nil:
		return nil, errors.New("session: engine is required")
	case deps.Assistant == nil:
		return nil, errors.New("session: assistant is required")
	case deps.STT == nil:
		return nil, errors.New("session: stt provider is required")
	case deps.VAD == nil:
		return nil, errors.New("session: vad engine is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	s := &Session{
		cfg:  cfg.withDefaults(),
		deps: deps,
		// Instructions are built once per session so a wellness assistant
		// primes them from the latest journal state.
		instructions: deps.Assistant.Instructions(),
	}

	if deps.Tools != nil {
		if err := deps.Tools.RegisterBuiltin(deps.Assistant.Tools()...); err != nil {
			return nil, fmt.Errorf("session: register assistant tools: %w", err)
		}
		if err := deps.Engine.SetTools(deps.Tools.Definitions()); err != nil {
			return nil, fmt.Errorf("session: set engine tools: %w", err)
		}
		deps.Engine.OnToolCall(s.executeTool)
	}

	deps.Engine.OnUsage(func(u llm.Usage) {
		s.usage.Collect(u)
		s.deps.Metrics.RecordTokens(context.Background(), deps.Assistant.Name(),
			u.PromptTokens, u.CompletionTokens)
	})

	return s, nil
}

// OnShutdown registers cb to run when the session ends. Callbacks run in
// reverse registration order, mirroring deferred cleanup.
func (s *Session) OnShutdown(cb func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCbs = append(s.shutdownCbs, cb)
}

// Usage returns the session's accumulated LLM token usage summary.
func (s *Session) Usage() string {
	return s.usage.Summary()
}

// Run drives the session until the caller disconnects or ctx is cancelled.
// It always tears down the capture path and runs shutdown callbacks before
// returning.
func (s *Session) Run(ctx context.Context) error {
	log := slog.With("session", s.cfg.ID, "assistant", s.deps.Assistant.Name())

	s.deps.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.deps.Metrics.ActiveSessions.Add(ctx, -1)
	defer s.runShutdownCallbacks()

	var denoiseSess denoise.SessionHandle
	if s.deps.Denoise != nil {
		var err error
		denoiseSess, err = s.deps.Denoise.NewSession(denoise.Config{
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
		})
		if err != nil {
			return fmt.Errorf("session: open denoise session: %w", err)
		}
		defer denoiseSess.Close()
	}

	vadSess, err := s.deps.VAD.NewSession(vad.Config{
		SampleRate:  s.cfg.SampleRate,
		FrameSizeMs: s.cfg.FrameSizeMs,
	})
	if err != nil {
		return fmt.Errorf("session: open vad session: %w", err)
	}
	defer vadSess.Close()

	sttSess, err := s.deps.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Language:   s.cfg.Language,
		Keywords:   s.cfg.Keywords,
	})
	if err != nil {
		return fmt.Errorf("session: open stt stream: %w", err)
	}
	defer sttSess.Close()

	// Drain final transcripts as they arrive; end-of-turn collects them.
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for tr := range sttSess.Finals() {
			if strings.TrimSpace(tr.Text) == "" {
				continue
			}
			s.mu.Lock()
			s.pendingFinals = append(s.pendingFinals, tr.Text)
			s.mu.Unlock()
		}
	}()

	// Persist engine transcripts.
	transcriptsDone := make(chan struct{})
	go func() {
		defer close(transcriptsDone)
		for entry := range s.deps.Engine.Transcripts() {
			if s.deps.Store == nil {
				continue
			}
			if err := s.deps.Store.WriteEntry(ctx, s.cfg.ID, entry); err != nil {
				log.Warn("failed to persist transcript entry", "error", err)
			}
		}
	}()

	log.Info("session started")

	if err := s.speakGreeting(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("greeting failed", "error", err)
	}

	detector := turndetect.New(s.cfg.Turn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-s.deps.Conn.Input():
			if !ok {
				log.Info("caller audio ended", "usage", s.usage.Summary())
				return nil
			}

			pcm := frame.Data
			if denoiseSess != nil {
				cleaned, err := denoiseSess.Process(pcm)
				if err != nil {
					log.Warn("denoise failed, using raw frame", "error", err)
				} else {
					pcm = cleaned
				}
			}

			ev, err := vadSess.ProcessFrame(pcm)
			if err != nil {
				log.Warn("vad failed on frame", "error", err)
				continue
			}

			if err := sttSess.SendAudio(pcm); err != nil {
				return fmt.Errorf("session: send audio to stt: %w", err)
			}

			if detector.Observe(ev) {
				if err := s.handleTurn(ctx, log); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Error("turn failed", "error", err)
				}
			}
		}
	}
}

// handleTurn collects the committed transcript for the turn that just ended
// and plays the engine's reply.
func (s *Session) handleTurn(ctx context.Context, log *slog.Logger) error {
	turnStart := time.Now()

	userText := s.collectFinals(ctx)
	if userText == "" {
		return nil
	}
	log.Info("user turn", "text", userText)

	resp, err := s.deps.Engine.Respond(ctx, userText, engine.Prompt{
		Instructions: s.instructions,
		Messages:     s.messages,
	})
	if err != nil {
		return fmt.Errorf("engine respond: %w", err)
	}

	s.messages = append(s.messages,
		types.Message{Role: "user", Content: userText},
		types.Message{Role: "assistant", Content: resp.Text},
	)

	s.deps.Metrics.RecordUtterance(ctx, s.deps.Assistant.Name())
	first, err := s.playAudio(ctx, resp)
	if first {
		s.deps.Metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	}
	return err
}

// collectFinals waits up to finalWait for the STT provider to commit the
// turn's final transcript, then drains and joins everything pending.
func (s *Session) collectFinals(ctx context.Context) string {
	deadline := time.Now().Add(finalWait)
	for {
		s.mu.Lock()
		if len(s.pendingFinals) > 0 {
			text := strings.Join(s.pendingFinals, " ")
			s.pendingFinals = nil
			s.mu.Unlock()
			return text
		}
		s.mu.Unlock()

		if time.Now().After(deadline) || ctx.Err() != nil {
			return ""
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(finalPollInterval):
		}
	}
}

// speakGreeting waits for the transport to settle, then plays the
// assistant's opening line.
func (s *Session) speakGreeting(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.GreetingDelay):
	}

	resp, err := s.deps.Engine.Say(ctx, s.deps.Assistant.Greeting())
	if err != nil {
		return fmt.Errorf("say greeting: %w", err)
	}
	_, err = s.playAudio(ctx, resp)
	return err
}

// playAudio streams the response's audio chunks to the connection output.
// first reports whether at least one chunk was played.
func (s *Session) playAudio(ctx context.Context, resp *engine.Response) (first bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return first, ctx.Err()
		case chunk, ok := <-resp.Audio:
			if !ok {
				if serr := resp.Err(); serr != nil {
					return first, fmt.Errorf("synthesis stream: %w", serr)
				}
				return first, nil
			}
			if len(chunk) == 0 {
				continue
			}
			frame := types.AudioFrame{
				Data:       chunk,
				SampleRate: s.cfg.OutputSampleRate,
				Channels:   1,
			}
			select {
			case <-ctx.Done():
				return first, ctx.Err()
			case s.deps.Conn.Output() <- frame:
				first = true
			}
		}
	}
}

// executeTool bridges the engine's tool callback onto the tools registry,
// surfacing application-level failures as errors the model gets to see.
func (s *Session) executeTool(ctx context.Context, name, args string) (string, error) {
	res, err := s.deps.Tools.Execute(ctx, name, args)
	if err != nil {
		s.deps.Metrics.RecordToolCall(ctx, name, "error")
		return "", err
	}
	s.deps.Metrics.ToolExecutionDuration.Record(ctx, res.Duration.Seconds(),
		metric.WithAttributes(observe.Attr("tool", name)))
	if res.IsError {
		s.deps.Metrics.RecordToolCall(ctx, name, "error")
		return "", errors.New(res.Content)
	}
	s.deps.Metrics.RecordToolCall(ctx, name, "ok")
	return res.Content, nil
}

func (s *Session) runShutdownCallbacks() {
	s.mu.Lock()
	cbs := s.shutdownCbs
	s.shutdownCbs = nil
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(cbs) - 1; i >= 0; i-- {
		cbs[i](ctx)
	}
}
