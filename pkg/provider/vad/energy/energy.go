// Package energy implements vad.Engine with an RMS energy detector.
//
// The detector maps each frame's RMS level to a pseudo-probability against a
// reference energy ceiling, then applies the configured speech and silence
// thresholds with hangover smoothing. It has no model to load, which makes it
// the default engine for offline runs and tests; accuracy in noisy rooms is
// below what a trained model gives.
package energy

import (
	"errors"
	"fmt"
	"math"

	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/provider/vad"
)

const (
	// referenceRMS is the RMS level treated as probability 1.0. Speech on a
	// typical mic sits well above 1000; 3000 keeps the probability curve
	// usefully spread.
	referenceRMS = 3000.0

	// hangoverFrames is how many consecutive sub-threshold frames are needed
	// before an active segment ends. Smooths over intra-word gaps.
	hangoverFrames = 3

	// Thresholds applied when neither the engine nor the session config sets
	// them. Match the typical values documented on vad.Config.
	defaultSpeechThreshold  = 0.5
	defaultSilenceThreshold = 0.35
)

var _ vad.Engine = (*Engine)(nil)
var _ vad.SessionHandle = (*session)(nil)

// Engine implements vad.Engine using frame RMS energy.
type Engine struct {
	speechThr  float64
	silenceThr float64
}

// Option configures the engine's default thresholds.
type Option func(*Engine)

// WithThresholds overrides the default speech and silence probability
// thresholds applied to sessions that do not set their own.
func WithThresholds(speech, silence float64) Option {
	return func(e *Engine) {
		e.speechThr = speech
		e.silenceThr = silence
	}
}

// New returns an energy-based VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		speechThr:  defaultSpeechThreshold,
		silenceThr: defaultSilenceThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a fresh detection session. Zero
// thresholds in cfg fall back to the engine defaults; a threshold of zero
// would classify the noise floor of a quiet room as speech on every frame.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %d ms", cfg.FrameSizeMs)
	}
	speech := cfg.SpeechThreshold
	if speech == 0 {
		speech = e.speechThr
	}
	silence := cfg.SilenceThreshold
	if silence == 0 {
		silence = e.silenceThr
	}
	if speech <= 0 || speech > 1 {
		return nil, fmt.Errorf("energy: speech threshold %v out of range (0,1]", speech)
	}
	if silence < 0 || silence > speech {
		return nil, fmt.Errorf("energy: silence threshold %v out of range [0,%v]", silence, speech)
	}
	return &session{
		frameBytes: cfg.SampleRate * 2 * cfg.FrameSizeMs / 1000,
		speechThr:  speech,
		silenceThr: silence,
	}, nil
}

type session struct {
	frameBytes int
	speechThr  float64
	silenceThr float64

	inSpeech bool
	quiet    int // consecutive sub-silence-threshold frames while in speech
	closed   bool
}

// ProcessFrame classifies one frame. The frame length must match the
// configured frame size.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	prob := math.Min(audio.RMS(frame)/referenceRMS, 1.0)

	switch {
	case !s.inSpeech && prob >= s.speechThr:
		s.inSpeech = true
		s.quiet = 0
		return vad.Event{Type: vad.SpeechStart, Probability: prob}, nil

	case s.inSpeech && prob <= s.silenceThr:
		s.quiet++
		if s.quiet >= hangoverFrames {
			s.inSpeech = false
			s.quiet = 0
			return vad.Event{Type: vad.SpeechEnd, Probability: prob}, nil
		}
		// Still inside the hangover window.
		return vad.Event{Type: vad.SpeechContinue, Probability: prob}, nil

	case s.inSpeech:
		s.quiet = 0
		return vad.Event{Type: vad.SpeechContinue, Probability: prob}, nil

	default:
		return vad.Event{Type: vad.Silence, Probability: prob}, nil
	}
}

// Reset clears segment state without closing the session.
func (s *session) Reset() {
	s.inSpeech = false
	s.quiet = 0
}

// Close marks the session unusable. Safe to call multiple times.
func (s *session) Close() error {
	s.closed = true
	return nil
}
