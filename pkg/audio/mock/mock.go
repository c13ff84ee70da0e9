// Package mock provides in-memory fakes for audio.Platform and
// audio.Connection, for use in tests.
package mock

import (
	"context"
	"sync"

	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/types"
)

var _ audio.Platform = (*Platform)(nil)
var _ audio.Connection = (*Connection)(nil)

// Platform is a mock audio.Platform. Connect returns Conn (or ConnectErr).
type Platform struct {
	Conn       *Connection
	ConnectErr error

	mu      sync.Mutex
	targets []string
}

// Connect records target and returns the configured connection.
func (p *Platform) Connect(_ context.Context, target string) (audio.Connection, error) {
	p.mu.Lock()
	p.targets = append(p.targets, target)
	p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Conn == nil {
		return NewConnection(), nil
	}
	return p.Conn, nil
}

// Targets returns every target Connect was called with.
func (p *Platform) Targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.targets...)
}

// Connection is a mock audio.Connection backed by plain channels. Tests push
// frames with PushInput and read synthesized audio from Out.
type Connection struct {
	In  chan types.AudioFrame
	Out chan types.AudioFrame

	mu           sync.Mutex
	eventCb      func(audio.Event)
	disconnected bool
}

// NewConnection returns a connection with buffered channels ready for use.
func NewConnection() *Connection {
	return &Connection{
		In:  make(chan types.AudioFrame, 256),
		Out: make(chan types.AudioFrame, 256),
	}
}

func (c *Connection) Input() <-chan types.AudioFrame { return c.In }

func (c *Connection) Output() chan<- types.AudioFrame { return c.Out }

func (c *Connection) OnEvent(cb func(audio.Event)) {
	c.mu.Lock()
	c.eventCb = cb
	c.mu.Unlock()
}

// Disconnect closes the input channel so pipeline readers observe end of
// audio. Safe to call multiple times.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return nil
	}
	c.disconnected = true
	close(c.In)
	return nil
}

// PushInput delivers a frame as if captured from the caller.
func (c *Connection) PushInput(frame types.AudioFrame) {
	c.In <- frame
}

// Emit invokes the registered event callback, if any.
func (c *Connection) Emit(ev audio.Event) {
	c.mu.Lock()
	cb := c.eventCb
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// Disconnected reports whether Disconnect has been called.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
