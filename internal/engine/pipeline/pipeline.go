// Package pipeline implements [engine.VoiceEngine] as an LLM + TTS pipeline.
//
// Respond runs the conversation loop: LLM completion → tool execution →
// follow-up completion (bounded by a round limit) → sentence-chunked TTS of
// the final reply. Tool results — including failures — are fed back to the
// model as tool-role messages, so the model can acknowledge a failed save
// instead of claiming success.
//
// Say bypasses the LLM entirely and synthesises a scripted line, which is
// how the session speaks its opening greeting.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/averro/voiceline/internal/engine"
	"github.com/averro/voiceline/internal/history"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/types"
)

const (
	// defaultMaxToolRounds bounds the execute-and-reprompt loop. Three
	// rounds covers every scripted flow in practice; a model stuck calling
	// tools forever gets cut off with whatever text it produced last.
	defaultMaxToolRounds = 3

	// defaultTranscriptBuf is the buffer depth of the transcript channel.
	defaultTranscriptBuf = 32

	// textBuf absorbs several sentences so the sentence feeder never blocks
	// behind a slow TTS connection setup.
	textBuf = 16
)

// Engine implements [engine.VoiceEngine] over an LLM provider and a TTS
// provider. Safe for concurrent use.
type Engine struct {
	llmP        llm.Provider
	ttsP        tts.Provider
	voice       types.VoiceProfile
	temperature float64

	maxToolRounds int
	transcriptBuf int

	mu           sync.Mutex
	tools        []types.ToolDefinition
	toolHandler  func(ctx context.Context, name, args string) (string, error)
	usageCB      func(llm.Usage)
	transcriptCh chan history.Entry
	closed       bool

	// wg tracks the sentence-feeder goroutines so tests can synchronise
	// with the end of synthesis.
	wg sync.WaitGroup
}

var _ engine.VoiceEngine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithTemperature sets the sampling temperature for LLM requests.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxToolRounds overrides the tool-loop round limit. Default is 3.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) { e.maxToolRounds = n }
}

// WithTranscriptBuffer sets the transcript channel capacity. Default is 32.
func WithTranscriptBuffer(n int) Option {
	return func(e *Engine) { e.transcriptBuf = n }
}

// New constructs a pipeline Engine over the given providers and voice.
func New(llmP llm.Provider, ttsP tts.Provider, voice types.VoiceProfile, opts ...Option) *Engine {
	e := &Engine{
		llmP:          llmP,
		ttsP:          ttsP,
		voice:         voice,
		maxToolRounds: defaultMaxToolRounds,
		transcriptBuf: defaultTranscriptBuf,
	}
	for _, o := range opts {
		o(e)
	}
	e.transcriptCh = make(chan history.Entry, e.transcriptBuf)
	return e
}

// Respond implements the conversation loop described in the package comment.
func (e *Engine) Respond(ctx context.Context, userText string, prompt engine.Prompt) (*engine.Response, error) {
	e.mu.Lock()
	tools := append([]types.ToolDefinition(nil), e.tools...)
	handler := e.toolHandler
	usageCB := e.usageCB
	e.mu.Unlock()

	e.emit(history.Entry{Role: history.RoleUser, Text: userText, Timestamp: time.Now()})

	msgs := make([]types.Message, 0, len(prompt.Messages)+1)
	msgs = append(msgs, prompt.Messages...)
	msgs = append(msgs, types.Message{Role: "user", Content: userText})

	var total llm.Usage
	var replyText string

	for round := 0; ; round++ {
		resp, err := e.llmP.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: prompt.Instructions,
			Messages:     msgs,
			Tools:        tools,
			Temperature:  e.temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: llm completion: %w", err)
		}
		total.Add(resp.Usage)
		if usageCB != nil {
			usageCB(resp.Usage)
		}

		if len(resp.ToolCalls) == 0 || handler == nil || round >= e.maxToolRounds {
			replyText = resp.Content
			break
		}

		msgs = append(msgs, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			msgs = append(msgs, types.Message{
				Role:       "tool",
				Content:    e.runTool(ctx, handler, call),
				ToolCallID: call.ID,
			})
		}
	}

	e.emit(history.Entry{Role: history.RoleAssistant, Text: replyText, Timestamp: time.Now()})

	resp := &engine.Response{Text: replyText, Usage: total}
	audio, err := e.synthesize(ctx, replyText, resp)
	if err != nil {
		return nil, err
	}
	resp.Audio = audio
	return resp, nil
}

// Say synthesises text verbatim.
func (e *Engine) Say(ctx context.Context, text string) (*engine.Response, error) {
	e.emit(history.Entry{Role: history.RoleAssistant, Text: text, Timestamp: time.Now()})

	resp := &engine.Response{Text: text}
	audio, err := e.synthesize(ctx, text, resp)
	if err != nil {
		return nil, err
	}
	resp.Audio = audio
	return resp, nil
}

// runTool executes one tool call, turning handler errors into a result the
// model can read. The error text is deliberately surfaced rather than
// swallowed: the model must not confirm a save that failed.
func (e *Engine) runTool(ctx context.Context, handler func(ctx context.Context, name, args string) (string, error), call types.ToolCall) string {
	out, err := handler(ctx, call.Name, call.Arguments)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return out
}

// synthesize starts TTS for text, feeding it sentence by sentence so
// playback starts before the full utterance is synthesised. Empty text
// yields an immediately-closed channel.
func (e *Engine) synthesize(ctx context.Context, text string, resp *engine.Response) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		ch := make(chan []byte)
		close(ch)
		return ch, nil
	}

	textCh := make(chan string, textBuf)
	audioCh, err := e.ttsP.SynthesizeStream(ctx, textCh, e.voice)
	if err != nil {
		close(textCh)
		return nil, fmt.Errorf("pipeline: start tts: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(textCh)
		for _, sentence := range splitSentences(text) {
			select {
			case textCh <- sentence:
			case <-ctx.Done():
				resp.SetStreamErr(ctx.Err())
				return
			}
		}
	}()

	return audioCh, nil
}

// SetTools replaces the tool set offered on the next Respond call.
func (e *Engine) SetTools(defs []types.ToolDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(defs) == 0 {
		e.tools = nil
		return nil
	}
	e.tools = append([]types.ToolDefinition(nil), defs...)
	return nil
}

// OnToolCall registers the tool executor. Only the most recent handler is
// active.
func (e *Engine) OnToolCall(handler func(ctx context.Context, name, args string) (string, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolHandler = handler
}

// OnUsage registers the per-round usage callback.
func (e *Engine) OnUsage(cb func(llm.Usage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usageCB = cb
}

// Transcripts returns the transcript channel. The channel value never
// changes after New, so no lock is required.
func (e *Engine) Transcripts() <-chan history.Entry {
	return e.transcriptCh
}

// Close closes the Transcripts channel. Safe to call multiple times.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.transcriptCh)
	return nil
}

// Wait blocks until all background synthesis feeders have finished.
// Primarily useful in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) emit(entry history.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.transcriptCh <- entry:
	default:
		// Drop rather than stall the voice loop when nobody is draining.
	}
}

// splitSentences breaks text at '.', '!', or '?' followed by whitespace.
// The trailing fragment, if any, becomes the final chunk.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		idx := sentenceBoundary(rest)
		if idx < 0 {
			break
		}
		out = append(out, rest[:idx+1])
		rest = strings.TrimLeft(rest[idx+1:], " \t\n\r")
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// sentenceBoundary returns the index of the first sentence-ending punctuation
// character that is immediately followed by whitespace, or -1.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
