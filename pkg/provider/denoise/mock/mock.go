// Package mock provides in-memory denoise test doubles.
package mock

import (
	"sync"

	"github.com/averro/voiceline/pkg/provider/denoise"
)

var _ denoise.Processor = (*Processor)(nil)
var _ denoise.SessionHandle = (*Session)(nil)

// Processor is a mock denoise.Processor. NewSession returns the configured
// Session (or SessionErr). A nil Session is replaced by a fresh one per call.
type Processor struct {
	Session    *Session
	SessionErr error

	mu      sync.Mutex
	configs []denoise.Config
}

// NewSession records cfg and returns the configured session.
func (p *Processor) NewSession(cfg denoise.Config) (denoise.SessionHandle, error) {
	p.mu.Lock()
	p.configs = append(p.configs, cfg)
	p.mu.Unlock()
	if p.SessionErr != nil {
		return nil, p.SessionErr
	}
	if p.Session == nil {
		return &Session{}, nil
	}
	return p.Session, nil
}

// Configs returns every Config NewSession was called with.
func (p *Processor) Configs() []denoise.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]denoise.Config(nil), p.configs...)
}

// Session is a passthrough denoise.SessionHandle that records frame counts.
type Session struct {
	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	mu     sync.Mutex
	frames int
	closed bool
}

// Process returns the frame unchanged.
func (s *Session) Process(frame []byte) ([]byte, error) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	if s.ProcessErr != nil {
		return nil, s.ProcessErr
	}
	return frame, nil
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
