package turndetect_test

import (
	"testing"

	"github.com/averro/voiceline/internal/turndetect"
	"github.com/averro/voiceline/pkg/provider/vad"
)

// feed pushes n frames of the given event type and returns how many
// end-of-turn signals fired.
func feed(d *turndetect.Detector, typ vad.EventType, n int) int {
	fired := 0
	for range n {
		if d.Observe(vad.Event{Type: typ}) {
			fired++
		}
	}
	return fired
}

func TestDetector_EndOfTurnAfterSilenceHold(t *testing.T) {
	t.Parallel()
	d := turndetect.New(turndetect.Config{
		SilenceHoldMs: 600,
		MinSpeechMs:   200,
		FrameSizeMs:   20,
	})

	// 300ms of speech starts the turn.
	if fired := feed(d, vad.SpeechContinue, 15); fired != 0 {
		t.Fatalf("end-of-turn fired during speech")
	}
	if !d.Speaking() {
		t.Fatal("detector not in turn after 300ms of speech")
	}

	// 580ms of silence: not yet.
	if fired := feed(d, vad.Silence, 29); fired != 0 {
		t.Fatal("end-of-turn fired before silence hold expired")
	}
	// One more frame crosses 600ms.
	if !d.Observe(vad.Event{Type: vad.Silence}) {
		t.Fatal("end-of-turn did not fire at silence hold")
	}
	if d.Speaking() {
		t.Error("detector still in turn after end-of-turn")
	}
}

func TestDetector_ShortBurstIgnored(t *testing.T) {
	t.Parallel()
	d := turndetect.New(turndetect.Config{
		SilenceHoldMs: 600,
		MinSpeechMs:   200,
		FrameSizeMs:   20,
	})

	// 100ms of speech — below MinSpeech — then plenty of silence.
	feed(d, vad.SpeechContinue, 5)
	if fired := feed(d, vad.Silence, 50); fired != 0 {
		t.Error("end-of-turn fired for a sub-threshold speech burst")
	}
}

func TestDetector_MidSentencePauseDoesNotEndTurn(t *testing.T) {
	t.Parallel()
	d := turndetect.New(turndetect.Config{
		SilenceHoldMs: 600,
		MinSpeechMs:   200,
		FrameSizeMs:   20,
	})

	feed(d, vad.SpeechContinue, 15) // turn begins
	feed(d, vad.Silence, 20)        // 400ms pause
	feed(d, vad.SpeechContinue, 10) // user resumes

	if fired := feed(d, vad.Silence, 29); fired != 0 {
		t.Fatal("pause before resumption counted toward silence hold")
	}
	if !d.Observe(vad.Event{Type: vad.Silence}) {
		t.Fatal("end-of-turn did not fire after full silence hold")
	}
}

func TestDetector_FiresOncePerTurn(t *testing.T) {
	t.Parallel()
	d := turndetect.New(turndetect.Config{FrameSizeMs: 20})

	feed(d, vad.SpeechContinue, 20)
	total := feed(d, vad.Silence, 100)
	if total != 1 {
		t.Errorf("end-of-turn fired %d times for one turn, want 1", total)
	}
}

func TestDetector_Defaults(t *testing.T) {
	t.Parallel()
	d := turndetect.New(turndetect.Config{})

	// With 20ms default frames: 200ms speech = 10 frames, 600ms hold = 30.
	feed(d, vad.SpeechStart, 10)
	if !d.Speaking() {
		t.Fatal("defaults: turn not started after 200ms of speech")
	}
	if fired := feed(d, vad.Silence, 30); fired != 1 {
		t.Errorf("defaults: end-of-turn fired %d times, want 1", fired)
	}
}
