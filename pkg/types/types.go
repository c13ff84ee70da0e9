// Package types defines the shared types used across all voiceline packages.
//
// These types form the lingua franca between providers, the pipeline engine,
// and the session layer. Each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// AudioFrame is one frame of PCM audio moving through the pipeline. Frames
// are the atomic unit of transport: captured from the input stream, run
// through noise suppression and VAD, and played back on the output stream.
type AudioFrame struct {
	// Raw PCM samples; format follows SampleRate and Channels.
	Data []byte

	// SampleRate in Hz, e.g. 16000 for recognition input, 24000 for synthesis output.
	SampleRate int

	// Channels: 1 for mono recognition input, 2 for stereo playback.
	Channels int

	// Timestamp is the capture time relative to stream start.
	Timestamp time.Duration
}

// Transcript is one recognition result from an STT provider, partial or final.
type Transcript struct {
	// Text holds the recognised speech.
	Text string

	// IsFinal distinguishes authoritative results from interim ones.
	IsFinal bool

	// Confidence in 0.0–1.0; zero when the provider reports none.
	Confidence float64

	// Words carries per-word timing when the provider supports it; may be nil.
	Words []WordDetail

	// Timestamp is the utterance start relative to session start.
	Timestamp time.Duration

	// Duration is how long the utterance lasted.
	Duration time.Duration
}

// WordDetail is per-word timing and confidence from STT providers that emit it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint handed to recognition so domain terms
// (drink names, sizes) are not misheard by general models.
type KeywordBoost struct {
	// Keyword is the term to favour, e.g. "macchiato".
	Keyword string

	// Boost strength on the provider's own scale.
	Boost float64
}

// Message is one entry in an LLM conversation history.
type Message struct {
	// Role: "system", "user", "assistant", or "tool".
	Role string

	// Content is the message text.
	Content string

	// Name optionally identifies the participant.
	Name string

	// ToolCalls lists tool invocations the assistant requested.
	ToolCalls []ToolCall

	// ToolCallID links a Role=="tool" message back to the call it answers.
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is assigned by the provider and must be echoed in the tool reply.
	ID string

	// Name of the tool or function being called.
	Name string

	// Arguments as a JSON-encoded string.
	Arguments string
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	// Name uniquely identifies the tool.
	Name string

	// Description tells the model what the tool does.
	Description string

	// Parameters is a JSON Schema for the tool's input.
	Parameters map[string]any
}

// ModelCapabilities records what a given model can do.
type ModelCapabilities struct {
	// ContextWindow is the combined input+output token limit.
	ContextWindow int

	// MaxOutputTokens caps a single completion.
	MaxOutputTokens int

	// SupportsToolCalling reports native function calling.
	SupportsToolCalling bool

	// SupportsStreaming reports streaming completion support.
	SupportsStreaming bool
}

// VoiceProfile is the TTS voice configuration for an assistant.
type VoiceProfile struct {
	// ID is the provider's voice identifier, e.g. "en-US-matthew".
	ID string

	// Name is the display name of the voice.
	Name string

	// Provider names the TTS provider the voice belongs to.
	Provider string

	// Style picks a provider speaking style such as "Conversation".
	Style string

	// PitchShift in -10..+10; zero keeps the voice default.
	PitchShift float64

	// SpeedFactor in 0.5–2.0; 1.0 keeps the voice default.
	SpeedFactor float64
}
