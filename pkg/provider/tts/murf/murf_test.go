package murf

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/averro/voiceline/pkg/types"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sample rate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

func TestBuildURL(t *testing.T) {
	p, err := New("secret-key", WithSampleRate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u := p.buildURL()
	if !strings.HasPrefix(u, "wss://") {
		t.Errorf("URL should be a WebSocket URL, got: %s", u)
	}
	for _, want := range []string{"api-key=secret-key", "sample_rate=24000", "format=PCM", "channel_type=MONO"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL missing %q: %s", want, u)
		}
	}
}

func TestBuildVoiceConfig_Defaults(t *testing.T) {
	vc := buildVoiceConfig(types.VoiceProfile{})
	if vc.VoiceID != DefaultVoiceID {
		t.Errorf("expected voice %q, got %q", DefaultVoiceID, vc.VoiceID)
	}
	if vc.Style != DefaultStyle {
		t.Errorf("expected style %q, got %q", DefaultStyle, vc.Style)
	}
	if vc.Rate != 0 || vc.Pitch != 0 {
		t.Errorf("expected zero rate/pitch, got %f/%f", vc.Rate, vc.Pitch)
	}
}

func TestBuildVoiceConfig_Overrides(t *testing.T) {
	vc := buildVoiceConfig(types.VoiceProfile{
		ID:          "en-UK-ruby",
		Style:       "Narration",
		SpeedFactor: 1.2,
		PitchShift:  -2,
	})
	if vc.VoiceID != "en-UK-ruby" {
		t.Errorf("expected voice 'en-UK-ruby', got %q", vc.VoiceID)
	}
	if vc.Style != "Narration" {
		t.Errorf("expected style 'Narration', got %q", vc.Style)
	}
	// SpeedFactor 1.2 maps to +20% rate.
	if vc.Rate < 19.99 || vc.Rate > 20.01 {
		t.Errorf("expected rate ~20, got %f", vc.Rate)
	}
	if vc.Pitch != -20 {
		t.Errorf("expected pitch -20, got %f", vc.Pitch)
	}
}

func TestTextMessage_FlushShape(t *testing.T) {
	// End-of-input flush = {"end":true} with no text field.
	data, err := json.Marshal(textMessage{End: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["text"]; ok {
		t.Error("flush message should not contain a text field")
	}
	if string(raw["end"]) != "true" {
		t.Errorf("expected end=true, got %s", raw["end"])
	}
}

func TestConvertVoices(t *testing.T) {
	voices := []murfVoice{
		{VoiceID: "en-US-matthew", DisplayName: "Matthew", Locale: "en-US", Styles: []string{"Conversation", "Promo"}},
		{VoiceID: "en-UK-ruby", DisplayName: "Ruby", Locale: "en-UK"},
	}
	profiles := convertVoices(voices)
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].ID != "en-US-matthew" || profiles[0].Name != "Matthew" {
		t.Errorf("unexpected first profile: %+v", profiles[0])
	}
	if profiles[0].Provider != "murf" {
		t.Errorf("expected provider 'murf', got %q", profiles[0].Provider)
	}
	if profiles[0].Style != "Conversation" {
		t.Errorf("expected style 'Conversation', got %q", profiles[0].Style)
	}
	if profiles[1].Style != "" {
		t.Errorf("expected empty style for voice without styles, got %q", profiles[1].Style)
	}
}
