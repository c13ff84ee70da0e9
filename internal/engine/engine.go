// Package engine defines the VoiceEngine interface and its supporting types.
//
// A VoiceEngine owns the response half of the conversation loop: it takes a
// final user transcript, generates a reply with the LLM (executing any tool
// calls the model requests along the way), synthesises speech, and returns a
// [Response] with the reply text and a streaming audio channel.
//
// The session layer feeds the engine; the engine never touches audio
// capture, VAD, or turn detection. The interface is intentionally narrow so
// the session stays implementation-agnostic — the pipeline engine is the
// in-repo implementation, and tests use the mock subpackage.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/averro/voiceline/internal/history"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/types"
)

// Prompt bundles what the engine needs to build the LLM request for one
// [VoiceEngine.Respond] call.
type Prompt struct {
	// Instructions is the assistant's full system prompt.
	Instructions string

	// Messages is the conversation so far, excluding the utterance being
	// responded to.
	Messages []types.Message
}

// Response is the result of a successful Respond or Say call.
type Response struct {
	// Text is the assistant's reply in plain text, available as soon as the
	// call returns.
	Text string

	// Audio streams raw PCM chunks as the TTS stage produces them. The
	// channel is closed when synthesis finishes or fails; check [Response.Err]
	// after it closes. Callers must drain the channel even when discarding
	// the audio.
	Audio <-chan []byte

	// Usage is the token accounting for every LLM round of this response.
	Usage llm.Usage

	streamErr atomic.Pointer[error]
}

// Err returns the error that closed the Audio channel early, or nil for a
// clean completion.
func (r *Response) Err() error {
	if p := r.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetStreamErr records a mid-stream error. Implementations call it before
// closing the Audio channel.
func (r *Response) SetStreamErr(err error) {
	r.streamErr.Store(&err)
}

// VoiceEngine generates spoken replies for one assistant session.
//
// A single engine instance is owned by one session; implementations must be
// safe for concurrent use but callers should not issue concurrent Respond
// calls for the same session.
type VoiceEngine interface {
	// Respond generates and synthesises a reply to userText. The call blocks
	// until the reply text is available; audio continues streaming after it
	// returns. Tool calls requested by the model are executed via the
	// registered handler before the final reply is produced.
	Respond(ctx context.Context, userText string, prompt Prompt) (*Response, error)

	// Say synthesises a scripted line verbatim, without involving the LLM.
	// Used for greetings and other fixed prompts.
	Say(ctx context.Context, text string) (*Response, error)

	// SetTools replaces the tool set offered to the LLM, effective on the
	// next Respond call. Nil or empty disables tool calling.
	SetTools(defs []types.ToolDefinition) error

	// OnToolCall registers handler as the executor for model-requested tool
	// calls. handler receives the tool name and JSON-encoded arguments and
	// returns a result string for the model, or an error which is reported
	// to the model as a failed call. Later registrations replace earlier
	// ones.
	OnToolCall(handler func(ctx context.Context, name, args string) (string, error))

	// OnUsage registers cb to receive token usage after each LLM round.
	// Later registrations replace earlier ones.
	OnUsage(cb func(llm.Usage))

	// Transcripts returns a channel emitting one [history.Entry] per final
	// user utterance and per assistant reply. Closed by Close.
	Transcripts() <-chan history.Entry

	// Close releases the engine's resources and closes the Transcripts
	// channel. Safe to call more than once.
	Close() error
}
