// Package turndetect decides when the user has finished speaking.
//
// The detector consumes per-frame [vad.Event] values and applies two
// hysteresis windows: an utterance only begins after MinSpeech of
// accumulated speech (filtering coughs and keyboard noise), and only ends
// after SilenceHold of continuous non-speech (so mid-sentence pauses do not
// cut the user off).
package turndetect

import "github.com/averro/voiceline/pkg/provider/vad"

// Defaults tuned for conversational turn-taking: long enough to survive a
// thinking pause, short enough that the assistant does not feel sluggish.
const (
	DefaultSilenceHoldMs = 600
	DefaultMinSpeechMs   = 200
)

// Config holds the detector's timing parameters, all in milliseconds of
// audio (frame count × frame size), not wall-clock time.
type Config struct {
	// SilenceHold is how much continuous silence ends a turn.
	SilenceHoldMs int

	// MinSpeech is how much accumulated speech starts a turn.
	MinSpeechMs int

	// FrameSizeMs is the duration of each audio frame fed to Observe.
	FrameSizeMs int
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.SilenceHoldMs <= 0 {
		c.SilenceHoldMs = DefaultSilenceHoldMs
	}
	if c.MinSpeechMs <= 0 {
		c.MinSpeechMs = DefaultMinSpeechMs
	}
	if c.FrameSizeMs <= 0 {
		c.FrameSizeMs = 20
	}
	return c
}

// Detector is a per-stream end-of-turn detector. It is not safe for
// concurrent use; each audio stream owns one Detector, same as a VAD
// session.
type Detector struct {
	cfg Config

	speechMs  int
	silenceMs int
	inTurn    bool
}

// New returns a Detector with zero config fields replaced by defaults.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Observe feeds one frame's VAD event into the detector. endOfTurn is true
// exactly once per turn, on the frame where the silence hold expires.
func (d *Detector) Observe(ev vad.Event) (endOfTurn bool) {
	speech := ev.Type == vad.SpeechStart || ev.Type == vad.SpeechContinue

	if speech {
		d.speechMs += d.cfg.FrameSizeMs
		d.silenceMs = 0
		if !d.inTurn && d.speechMs >= d.cfg.MinSpeechMs {
			d.inTurn = true
		}
		return false
	}

	// Non-speech frame. Sub-threshold speech bursts reset entirely.
	if !d.inTurn {
		d.speechMs = 0
		return false
	}

	d.silenceMs += d.cfg.FrameSizeMs
	if d.silenceMs >= d.cfg.SilenceHoldMs {
		d.Reset()
		return true
	}
	return false
}

// Speaking reports whether the detector is currently inside a turn.
func (d *Detector) Speaking() bool { return d.inTurn }

// Reset clears all accumulated state, ready for the next turn.
func (d *Detector) Reset() {
	d.speechMs = 0
	d.silenceMs = 0
	d.inTurn = false
}
