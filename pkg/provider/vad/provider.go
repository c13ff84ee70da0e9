// Package vad defines the Engine interface for Voice Activity Detection.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful per-stream session. Each session keeps its own smoothing state so
// multiple concurrent audio streams can be processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the pipeline stage that gates STT
// input and drives turn detection.
//
// Engines must be safe for concurrent use; a single SessionHandle is not,
// unless the implementation says otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames
	// passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the expected duration of each frame in milliseconds.
	// ProcessFrame returns an error on frames of a different size.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Range [0, 1]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech
	// segment is considered ended. Must be <= SpeechThreshold. Typical: 0.35.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for one audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one frame of raw 16-bit LE PCM and returns the
	// detection result. It must not block; it is called inline in the audio
	// loop.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling it more than once is safe.
	Close() error
}

// Engine creates VAD sessions. Implementations must be safe for concurrent
// use.
type Engine interface {
	// NewSession creates a session ready to accept frames. Returns an error
	// for invalid configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
