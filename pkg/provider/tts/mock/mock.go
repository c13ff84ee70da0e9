// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify the
// VoiceProfile and text fragments that reach the TTS backend.
package mock

import (
	"context"
	"sync"

	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	Voice types.VoiceProfile

	// Text holds every fragment drained from the text channel, populated as
	// the stream runs. Read it only after the audio channel has closed.
	Text []string
}

// Provider is a mock implementation of tts.Provider.
//
// SynthesizeStream drains the caller's text channel (recording fragments),
// then emits SynthesizeChunks on the audio channel and closes it.
type Provider struct {
	mu sync.Mutex

	// SynthesizeChunks is the sequence of audio byte slices emitted by each
	// SynthesizeStream call.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned from SynthesizeStream instead of
	// starting a stream.
	SynthesizeErr error

	// ListVoicesResult and ListVoicesErr are returned by ListVoices.
	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error

	calls      []*SynthesizeStreamCall
	voiceCalls int
}

// SynthesizeStream records the call and returns a channel that emits
// SynthesizeChunks after the text channel closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	call := &SynthesizeStreamCall{Voice: voice}
	p.calls = append(p.calls, call)
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks)+1)
	go func() {
		defer close(ch)
		for fragment := range text {
			p.mu.Lock()
			call.Text = append(call.Text, fragment)
			p.mu.Unlock()
		}
		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// ListVoices returns the configured result.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns every recorded SynthesizeStream invocation in order.
func (p *Provider) Calls() []*SynthesizeStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SynthesizeStreamCall(nil), p.calls...)
}

// ListVoicesCalls returns how many times ListVoices was invoked.
func (p *Provider) ListVoicesCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceCalls
}
