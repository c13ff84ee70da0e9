package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// sine generates n samples of 16-bit LE PCM at the given amplitude.
func sine(n int, amplitude float64) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*float64(i)/64)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v)))
	}
	return buf
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS(make([]byte, 320)); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}

	loud := RMS(sine(1024, 10000))
	quiet := RMS(sine(1024, 100))
	if loud <= quiet {
		t.Errorf("RMS(loud)=%v should exceed RMS(quiet)=%v", loud, quiet)
	}
	// A full-scale sine has RMS of amplitude/sqrt(2).
	want := 10000 / math.Sqrt2
	if math.Abs(loud-want) > want*0.05 {
		t.Errorf("RMS(sine 10000) = %v, want within 5%% of %v", loud, want)
	}
}

func TestDurationMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		byteLen, sampleRate, channels, want int
	}{
		{32000, 16000, 1, 1000},
		{320, 16000, 1, 10},
		{64000, 16000, 2, 1000},
		{100, 0, 1, 0},
		{100, 16000, 0, 0},
	}
	for _, tt := range tests {
		if got := DurationMs(tt.byteLen, tt.sampleRate, tt.channels); got != tt.want {
			t.Errorf("DurationMs(%d, %d, %d) = %d, want %d",
				tt.byteLen, tt.sampleRate, tt.channels, got, tt.want)
		}
	}
}

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := sine(1600, 5000)
	wav := EncodeWAV(pcm, 16000, 1)

	got, info, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Errorf("info = %+v, want 16000 Hz mono", info)
	}
	if len(got) != len(pcm) {
		t.Fatalf("pcm length = %d, want %d", len(got), len(pcm))
	}
	for i := range pcm {
		if got[i] != pcm[i] {
			t.Fatalf("pcm mismatch at byte %d", i)
		}
	}
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", append([]byte("JUNKxxxxJUNK"), make([]byte, 40)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
