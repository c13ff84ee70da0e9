// Package mock provides an in-memory stt.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)
var _ stt.SessionHandle = (*Session)(nil)

// Provider is a mock stt.Provider. StartStream returns the configured Session
// (or StartErr). A nil Session is replaced by a fresh one per call.
type Provider struct {
	Session  *Session
	StartErr error

	mu      sync.Mutex
	configs []stt.StreamConfig
}

// StartStream records cfg and returns the configured session.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	p.configs = append(p.configs, cfg)
	p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	if p.Session == nil {
		return NewSession(), nil
	}
	return p.Session, nil
}

// Configs returns every StreamConfig StartStream was called with.
func (p *Provider) Configs() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.StreamConfig(nil), p.configs...)
}

// Session is a scriptable stt.SessionHandle. Tests emit transcripts with
// EmitPartial and EmitFinal and inspect audio received via SendAudio.
type Session struct {
	SendErr     error
	KeywordsErr error

	partials chan types.Transcript
	finals   chan types.Transcript

	mu       sync.Mutex
	audio    [][]byte
	keywords []types.KeywordBoost
	closed   bool
}

// NewSession returns a session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
	}
}

func (s *Session) SendAudio(chunk []byte) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	s.mu.Lock()
	s.audio = append(s.audio, chunk)
	s.mu.Unlock()
	return nil
}

func (s *Session) Partials() <-chan types.Transcript { return s.partials }

func (s *Session) Finals() <-chan types.Transcript { return s.finals }

func (s *Session) SetKeywords(kws []types.KeywordBoost) error {
	if s.KeywordsErr != nil {
		return s.KeywordsErr
	}
	s.mu.Lock()
	s.keywords = append([]types.KeywordBoost(nil), kws...)
	s.mu.Unlock()
	return nil
}

// Close closes both transcript channels. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// EmitPartial delivers an interim transcript to the session's consumer.
func (s *Session) EmitPartial(text string) {
	s.partials <- types.Transcript{Text: text}
}

// EmitFinal delivers a final transcript to the session's consumer.
func (s *Session) EmitFinal(text string) {
	s.finals <- types.Transcript{Text: text, IsFinal: true}
}

// Audio returns all chunks received via SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// Keywords returns the last keyword set passed to SetKeywords.
func (s *Session) Keywords() []types.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.KeywordBoost(nil), s.keywords...)
}
