package resilience

import (
	"context"

	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/types"
)

// LLMFailover implements [llm.Provider] across multiple backends. When the
// primary fails or its breaker is open, the next healthy fallback is tried.
type LLMFailover struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover creates an LLMFailover with primary as the preferred backend.
func NewLLMFailover(primaryName string, primary llm.Provider, breaker BreakerConfig) *LLMFailover {
	return &LLMFailover{chain: NewChain(primaryName, primary, breaker)}
}

// Add registers an additional LLM backend as a fallback.
func (f *LLMFailover) Add(name string, p llm.Provider) {
	f.chain.Add(name, p)
}

// Complete sends req to the first healthy backend.
func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(f.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a completion stream on the first healthy backend.
// Only stream setup is covered by failover; mid-stream errors belong to the
// caller.
func (f *LLMFailover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Try(f.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Capabilities reports the primary's capabilities. Static metadata does not
// participate in failover.
func (f *LLMFailover) Capabilities() types.ModelCapabilities {
	return f.chain.primary().Capabilities()
}

// STTFailover implements [stt.Provider] across multiple backends.
type STTFailover struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover creates an STTFailover with primary as the preferred backend.
func NewSTTFailover(primaryName string, primary stt.Provider, breaker BreakerConfig) *STTFailover {
	return &STTFailover{chain: NewChain(primaryName, primary, breaker)}
}

// Add registers an additional STT backend as a fallback.
func (f *STTFailover) Add(name string, p stt.Provider) {
	f.chain.Add(name, p)
}

// StartStream opens a transcription session on the first healthy backend.
// An established session is not failed over; a broken session surfaces to the
// caller, whose next StartStream picks a healthy backend again.
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Try(f.chain, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// TTSFailover implements [tts.Provider] across multiple backends.
type TTSFailover struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover creates a TTSFailover with primary as the preferred backend.
func NewTTSFailover(primaryName string, primary tts.Provider, breaker BreakerConfig) *TTSFailover {
	return &TTSFailover{chain: NewChain(primaryName, primary, breaker)}
}

// Add registers an additional TTS backend as a fallback.
func (f *TTSFailover) Add(name string, p tts.Provider) {
	f.chain.Add(name, p)
}

// SynthesizeStream starts synthesis on the first healthy backend. Only stream
// setup is covered by failover.
func (f *TTSFailover) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return Try(f.chain, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices returns the voice catalogue of the first healthy backend.
func (f *TTSFailover) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return Try(f.chain, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
