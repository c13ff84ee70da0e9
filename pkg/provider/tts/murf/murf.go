// Package murf provides a Murf-backed TTS provider using the Murf streaming
// WebSocket API. It implements the tts.Provider interface.
package murf

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"

	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/types"
)

const (
	wsEndpoint     = "wss://api.murf.ai/v1/speech/stream-input"
	voicesEndpoint = "https://api.murf.ai/v1/speech/voices"

	// DefaultVoiceID is used when a VoiceProfile arrives without an ID.
	DefaultVoiceID = "en-US-matthew"

	// DefaultStyle is the speaking style applied when the profile has none.
	DefaultStyle = "Conversation"

	defaultSampleRate = 16000
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Murf Provider.
type Option func(*Provider)

// WithSampleRate sets the PCM sample rate requested from Murf (e.g. 16000,
// 24000, 44100). Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements tts.Provider backed by the Murf streaming API.
type Provider struct {
	apiKey     string
	sampleRate int
	httpClient *http.Client
}

// New creates a new Murf Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("murf: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// voiceConfig is sent once at stream start to select the voice.
type voiceConfig struct {
	VoiceID string  `json:"voiceId"`
	Style   string  `json:"style,omitempty"`
	Rate    float64 `json:"rate,omitempty"`
	Pitch   float64 `json:"pitch,omitempty"`
}

// configMessage is the first message on the WebSocket.
type configMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

// textMessage carries one text fragment. End marks the last fragment and
// tells Murf to flush remaining audio.
type textMessage struct {
	Text string `json:"text,omitempty"`
	End  bool   `json:"end,omitempty"`
}

// audioResponse is a message received from Murf over the WebSocket.
type audioResponse struct {
	Audio string `json:"audio"` // base64-encoded PCM
	Final bool   `json:"final"`
	Error string `json:"error,omitempty"`
}

// buildURL constructs the WebSocket URL with auth and format parameters.
func (p *Provider) buildURL() string {
	q := url.Values{}
	q.Set("api-key", p.apiKey)
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("channel_type", "MONO")
	q.Set("format", "PCM")
	return wsEndpoint + "?" + q.Encode()
}

// buildVoiceConfig maps a VoiceProfile onto Murf's voice_config message,
// applying the matthew/Conversation defaults for unset fields. Rate and pitch
// are expressed by Murf as percentage offsets from the voice default.
func buildVoiceConfig(voice types.VoiceProfile) voiceConfig {
	vc := voiceConfig{
		VoiceID: voice.ID,
		Style:   voice.Style,
	}
	if vc.VoiceID == "" {
		vc.VoiceID = DefaultVoiceID
	}
	if vc.Style == "" {
		vc.Style = DefaultStyle
	}
	if voice.SpeedFactor != 0 && voice.SpeedFactor != 1 {
		vc.Rate = (voice.SpeedFactor - 1) * 100
	}
	if voice.PitchShift != 0 {
		vc.Pitch = voice.PitchShift * 10
	}
	return vc
}

// SynthesizeStream opens a WebSocket to Murf, pipes text fragments from the
// text channel, and returns a channel emitting raw PCM audio chunks.
//
// The returned audio channel is closed when synthesis is complete or ctx is
// cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	conn, _, err := websocket.Dial(ctx, p.buildURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("murf: dial: %w", err)
	}

	cfg := configMessage{VoiceConfig: buildVoiceConfig(voice)}
	cfgBytes, _ := json.Marshal(cfg)
	if err := conn.Write(ctx, websocket.MessageText, cfgBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send voice config")
		return nil, fmt.Errorf("murf: send voice config: %w", err)
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var resp audioResponse
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if resp.Audio != "" {
					pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
					if err != nil {
						continue
					}
					select {
					case audioCh <- pcm:
					case <-ctx.Done():
						return
					}
				}
				if resp.Final {
					return
				}
			}
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					// Text channel closed: flush and wait for trailing audio.
					endBytes, _ := json.Marshal(textMessage{End: true})
					_ = conn.Write(ctx, websocket.MessageText, endBytes)
					select {
					case <-readDone:
					case <-ctx.Done():
					}
					return
				}
				if fragment == "" {
					continue
				}
				msgBytes, _ := json.Marshal(textMessage{Text: fragment})
				if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ---- ListVoices ----

// murfVoice is a single voice entry from GET /v1/speech/voices.
type murfVoice struct {
	VoiceID     string   `json:"voiceId"`
	DisplayName string   `json:"displayName"`
	Locale      string   `json:"locale"`
	Styles      []string `json:"availableStyles"`
}

// ListVoices returns all voices available from Murf for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("murf: list voices: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("murf: list voices: unexpected status %d", resp.StatusCode)
	}

	var voices []murfVoice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("murf: list voices decode: %w", err)
	}
	return convertVoices(voices), nil
}

func convertVoices(voices []murfVoice) []types.VoiceProfile {
	profiles := make([]types.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		style := ""
		if len(v.Styles) > 0 {
			style = v.Styles[0]
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.DisplayName,
			Provider: "murf",
			Style:    style,
		})
	}
	return profiles
}
