package energy

import (
	"encoding/binary"
	"testing"

	"github.com/averro/voiceline/internal/turndetect"
	"github.com/averro/voiceline/pkg/provider/vad"
)

// pcmFrame builds a 20ms 16kHz mono frame where every sample has the given
// amplitude.
func pcmFrame(amplitude int16) []byte {
	const samples = 16000 * 20 / 1000
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func newSession(t *testing.T, cfg vad.Config) vad.SessionHandle {
	t.Helper()
	sess, err := New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func TestNewSession_DefaultsThresholds(t *testing.T) {
	t.Parallel()
	sess := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	defer sess.Close()

	// A quiet room's noise floor must not classify as speech.
	ev, err := sess.ProcessFrame(pcmFrame(3))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.Silence {
		t.Fatalf("near-silent frame classified as %v, want %v", ev.Type, vad.Silence)
	}
}

func TestNewSession_ConfigOverridesEngineDefaults(t *testing.T) {
	t.Parallel()
	sess := newSession(t, vad.Config{
		SampleRate:       16000,
		FrameSizeMs:      20,
		SpeechThreshold:  0.9,
		SilenceThreshold: 0.8,
	})
	defer sess.Close()

	// RMS 1500 maps to probability 0.5: speech at the defaults, silence at 0.9.
	ev, err := sess.ProcessFrame(pcmFrame(1500))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.Silence {
		t.Fatalf("frame classified as %v, want %v with raised threshold", ev.Type, vad.Silence)
	}
}

func TestNewSession_RejectsBadThresholds(t *testing.T) {
	t.Parallel()
	e := New()
	if _, err := e.NewSession(vad.Config{
		SampleRate: 16000, FrameSizeMs: 20,
		SpeechThreshold: 1.5,
	}); err == nil {
		t.Error("expected error for speech threshold > 1")
	}
	if _, err := e.NewSession(vad.Config{
		SampleRate: 16000, FrameSizeMs: 20,
		SpeechThreshold: 0.4, SilenceThreshold: 0.6,
	}); err == nil {
		t.Error("expected error for silence threshold above speech threshold")
	}
}

func TestSpeechPause(t *testing.T) {
	t.Parallel()
	sess := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	defer sess.Close()

	ev, err := sess.ProcessFrame(pcmFrame(3000))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechStart {
		t.Fatalf("loud frame classified as %v, want %v", ev.Type, vad.SpeechStart)
	}

	// Hangover smooths the first few quiet frames, then the segment ends.
	var sawEnd bool
	for i := 0; i < 10; i++ {
		ev, err = sess.ProcessFrame(pcmFrame(3))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if ev.Type == vad.SpeechEnd {
			sawEnd = true
			break
		}
	}
	if !sawEnd {
		t.Fatal("speech segment never ended over 10 near-silent frames")
	}
}

// A session built with only sample rate and frame size, driven through the
// turn detector, must still produce end-of-turn after speech fades out.
func TestEndOfTurnWithDefaultConfig(t *testing.T) {
	t.Parallel()
	sess := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	defer sess.Close()
	det := turndetect.New(turndetect.Config{FrameSizeMs: 20})

	// 400ms of speech.
	for i := 0; i < 20; i++ {
		ev, err := sess.ProcessFrame(pcmFrame(3000))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if det.Observe(ev) {
			t.Fatal("end of turn during continuous speech")
		}
	}

	// 5s of a near-silent room.
	for i := 0; i < 250; i++ {
		ev, err := sess.ProcessFrame(pcmFrame(3))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if det.Observe(ev) {
			return
		}
	}
	t.Fatal("no end of turn over 5 seconds of near-silence after speech")
}
