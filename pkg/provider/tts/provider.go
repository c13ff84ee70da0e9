// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Murf or a local
// engine) and presents a uniform streaming interface. The primary entry point
// is SynthesizeStream, which accepts a channel of text fragments and returns a
// channel of raw PCM audio bytes as they become available, so LLM output can
// be pipelined into synthesis without waiting for the full reply.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/averro/voiceline/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel emitting raw PCM audio as it is synthesized.
	//
	// The audio channel is closed by the implementation when all text has
	// been synthesized or ctx is cancelled. The caller must drain it.
	// Errors during synthesis close the channel early; callers check
	// ctx.Err() to distinguish cancellation from provider failure.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the provider's current voice catalogue.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
