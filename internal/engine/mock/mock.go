// Package mock provides an in-memory engine.VoiceEngine for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/averro/voiceline/internal/engine"
	"github.com/averro/voiceline/internal/history"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/types"
)

var _ engine.VoiceEngine = (*Engine)(nil)

// RespondCall records one invocation of Respond.
type RespondCall struct {
	UserText string
	Prompt   engine.Prompt
}

// Engine is a scriptable engine.VoiceEngine. Respond returns ReplyText (or
// RespondErr) with a closed audio channel carrying AudioChunks; Say echoes
// its input the same way. All calls are recorded.
type Engine struct {
	ReplyText   string
	AudioChunks [][]byte
	RespondErr  error
	SayErr      error
	Usage       llm.Usage

	mu           sync.Mutex
	respondCalls []RespondCall
	sayCalls     []string
	tools        []types.ToolDefinition
	toolHandler  func(ctx context.Context, name, args string) (string, error)
	usageCB      func(llm.Usage)
	transcripts  chan history.Entry
	closed       bool
}

// New returns a mock engine with a buffered transcript channel.
func New() *Engine {
	return &Engine{transcripts: make(chan history.Entry, 64)}
}

func (e *Engine) respond(text string) *engine.Response {
	ch := make(chan []byte, len(e.AudioChunks)+1)
	for _, c := range e.AudioChunks {
		ch <- c
	}
	close(ch)
	return &engine.Response{Text: text, Audio: ch, Usage: e.Usage}
}

func (e *Engine) Respond(_ context.Context, userText string, prompt engine.Prompt) (*engine.Response, error) {
	e.mu.Lock()
	e.respondCalls = append(e.respondCalls, RespondCall{UserText: userText, Prompt: prompt})
	cb := e.usageCB
	e.mu.Unlock()
	if e.RespondErr != nil {
		return nil, e.RespondErr
	}
	if cb != nil {
		cb(e.Usage)
	}
	e.emit(history.Entry{Role: history.RoleUser, Text: userText, Timestamp: time.Now()})
	e.emit(history.Entry{Role: history.RoleAssistant, Text: e.ReplyText, Timestamp: time.Now()})
	return e.respond(e.ReplyText), nil
}

func (e *Engine) Say(_ context.Context, text string) (*engine.Response, error) {
	e.mu.Lock()
	e.sayCalls = append(e.sayCalls, text)
	e.mu.Unlock()
	if e.SayErr != nil {
		return nil, e.SayErr
	}
	e.emit(history.Entry{Role: history.RoleAssistant, Text: text, Timestamp: time.Now()})
	return e.respond(text), nil
}

func (e *Engine) SetTools(defs []types.ToolDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools = append([]types.ToolDefinition(nil), defs...)
	return nil
}

func (e *Engine) OnToolCall(handler func(ctx context.Context, name, args string) (string, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolHandler = handler
}

func (e *Engine) OnUsage(cb func(llm.Usage)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usageCB = cb
}

func (e *Engine) Transcripts() <-chan history.Entry { return e.transcripts }

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.transcripts)
	return nil
}

func (e *Engine) emit(entry history.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.transcripts <- entry:
	default:
	}
}

// RespondCalls returns every recorded Respond invocation.
func (e *Engine) RespondCalls() []RespondCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]RespondCall(nil), e.respondCalls...)
}

// SayCalls returns every text passed to Say.
func (e *Engine) SayCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sayCalls...)
}

// Tools returns the last tool set passed to SetTools.
func (e *Engine) Tools() []types.ToolDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.ToolDefinition(nil), e.tools...)
}

// ToolHandler returns the registered tool handler, or nil.
func (e *Engine) ToolHandler() func(ctx context.Context, name, args string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toolHandler
}
