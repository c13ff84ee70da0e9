// Package audio defines the audio I/O abstraction the voice pipeline runs on,
// plus small PCM helpers shared by providers.
//
// A [Platform] opens a [Connection] carrying one caller's audio: a single
// input stream of captured frames and a single output stream for synthesized
// speech. Adapter packages (audio/wavfile for offline runs, audio/mock for
// tests) implement both interfaces; the pipeline never touches transport
// details.
package audio

import (
	"context"

	"github.com/averro/voiceline/pkg/types"
)

// EventType classifies connection lifecycle events.
type EventType int

const (
	// EventConnected is emitted once the caller's audio starts flowing.
	EventConnected EventType = iota

	// EventDisconnected is emitted when the caller's audio ends, whether by
	// hangup or input exhaustion.
	EventDisconnected
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Event describes a lifecycle change on a connection.
type Event struct {
	Type EventType

	// ParticipantID identifies the caller on the underlying transport.
	ParticipantID string
}

// Connection is one caller's live audio session.
//
// A Connection is obtained from [Platform.Connect] and stays valid until
// [Connection.Disconnect]. The Input channel is closed by the implementation
// when the caller's audio ends; the Output channel is owned by the writer and
// is never closed by the implementation.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Input returns the read-only stream of captured audio frames. The
	// channel is closed when the caller disconnects or the source is
	// exhausted.
	Input() <-chan types.AudioFrame

	// Output returns the write-only stream for synthesized speech. Frames
	// written after Disconnect are dropped, not a panic.
	Output() chan<- types.AudioFrame

	// OnEvent registers cb for lifecycle events. One callback at a time;
	// later calls replace earlier ones. The callback runs on an internal
	// goroutine and must not block.
	OnEvent(cb func(Event))

	// Disconnect tears down the session, flushing pending output frames.
	// Calling it more than once is a no-op returning nil.
	Disconnect() error
}

// Platform opens audio sessions on some transport.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect opens the audio session identified by target (a room name, a
	// file path, a device — transport-specific). ctx bounds the connection
	// attempt only; an established Connection lives until Disconnect.
	Connect(ctx context.Context, target string) (Connection, error)
}
