// Package denoise defines the Processor interface for noise suppression.
//
// A denoise processor sits between audio capture and VAD, cleaning each
// frame before speech detection sees it. Like VAD, processing is synchronous
// and frame-at-a-time: the processor runs inline in the audio loop and must
// not block.
//
// Heavy model-based suppression lives behind remote or native
// implementations of this interface; the in-repo gate implementation is a
// simple energy gate suitable for quiet environments and tests.
package denoise

// Config holds the parameters for a denoise session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the PCM frames passed to
	// Process.
	SampleRate int

	// Channels is the number of audio channels.
	Channels int
}

// SessionHandle is an active denoise session for one audio stream. It is not
// safe for concurrent use unless the implementation says otherwise.
type SessionHandle interface {
	// Process cleans one frame of raw 16-bit LE PCM and returns the result.
	// The returned slice may alias the input; callers that retain frames
	// must copy. Must not block.
	Process(frame []byte) ([]byte, error)

	// Close releases the session. Calling it more than once is safe.
	Close() error
}

// Processor creates denoise sessions. Implementations must be safe for
// concurrent use.
type Processor interface {
	// NewSession creates a session ready to accept frames. Returns an error
	// for invalid configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
