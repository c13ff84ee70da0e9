// Package mock provides in-memory vad test doubles.
package mock

import (
	"sync"

	"github.com/averro/voiceline/pkg/provider/vad"
)

var _ vad.Engine = (*Engine)(nil)
var _ vad.SessionHandle = (*Session)(nil)

// Engine is a mock vad.Engine. NewSession returns the configured Session
// (or SessionErr). A nil Session is replaced by a fresh one per call.
type Engine struct {
	Session    *Session
	SessionErr error

	mu      sync.Mutex
	configs []vad.Config
}

// NewSession records cfg and returns the configured session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	e.configs = append(e.configs, cfg)
	e.mu.Unlock()
	if e.SessionErr != nil {
		return nil, e.SessionErr
	}
	if e.Session == nil {
		return &Session{}, nil
	}
	return e.Session, nil
}

// Configs returns every Config NewSession was called with.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session is a scriptable vad.SessionHandle. Tests queue events with Script;
// once the script is exhausted, ProcessFrame returns Default.
type Session struct {
	// Default is returned when the script is empty.
	Default vad.Event

	// ProcessErr, if non-nil, is returned by every ProcessFrame call.
	ProcessErr error

	mu     sync.Mutex
	script []vad.Event
	frames int
	resets int
	closed bool
}

// Script appends events to be returned by successive ProcessFrame calls.
func (s *Session) Script(events ...vad.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, events...)
}

func (s *Session) ProcessFrame(_ []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.ProcessErr != nil {
		return vad.Event{}, s.ProcessErr
	}
	if len(s.script) > 0 {
		ev := s.script[0]
		s.script = s.script[1:]
		return ev, nil
	}
	return s.Default, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames returns how many frames were processed.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
