// Package gate implements [denoise.Processor] as a soft noise gate.
//
// Frames whose RMS energy falls below the threshold are attenuated rather
// than zeroed, so the gate never produces the clicky hard-mute artifacts a
// naive gate would. This is not a substitute for model-based suppression —
// it removes steady low-level background (fans, hum), not speech-band noise.
package gate

import (
	"encoding/binary"
	"fmt"

	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/provider/denoise"
)

const (
	// defaultThreshold is the RMS level (0–32767) below which frames are
	// attenuated. Chosen well under typical speech levels.
	defaultThreshold = 250.0

	// defaultAttenuation scales sub-threshold frames. 0.1 ≈ -20 dB.
	defaultAttenuation = 0.1
)

var _ denoise.Processor = (*Processor)(nil)
var _ denoise.SessionHandle = (*session)(nil)

// Option is a functional option for configuring a Processor.
type Option func(*Processor)

// WithThreshold sets the RMS gate threshold (0–32767 sample units).
func WithThreshold(t float64) Option {
	return func(p *Processor) { p.threshold = t }
}

// WithAttenuation sets the gain applied to sub-threshold frames, in [0, 1].
func WithAttenuation(a float64) Option {
	return func(p *Processor) { p.attenuation = a }
}

// Processor creates noise-gate sessions.
type Processor struct {
	threshold   float64
	attenuation float64
}

// New returns a Processor with the given options applied over defaults.
func New(opts ...Option) *Processor {
	p := &Processor{
		threshold:   defaultThreshold,
		attenuation: defaultAttenuation,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewSession creates a gate session. The gate is stateless per frame, so cfg
// is only validated, not stored.
func (p *Processor) NewSession(cfg denoise.Config) (denoise.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("gate: sample rate must be positive, got %d", cfg.SampleRate)
	}
	return &session{threshold: p.threshold, attenuation: p.attenuation}, nil
}

type session struct {
	threshold   float64
	attenuation float64
}

// Process attenuates the frame in place when its energy is below the gate
// threshold.
func (s *session) Process(frame []byte) ([]byte, error) {
	if len(frame)%2 != 0 {
		return nil, fmt.Errorf("gate: frame length %d is not 16-bit aligned", len(frame))
	}
	if audio.RMS(frame) >= s.threshold {
		return frame, nil
	}
	for i := 0; i+1 < len(frame); i += 2 {
		v := int16(binary.LittleEndian.Uint16(frame[i : i+2]))
		binary.LittleEndian.PutUint16(frame[i:i+2], uint16(int16(float64(v)*s.attenuation)))
	}
	return frame, nil
}

func (s *session) Close() error { return nil }
