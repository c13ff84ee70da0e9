// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/types"
)

const listenEndpoint = "wss://api.deepgram.com/v1/listen"

var _ stt.Provider = (*Provider)(nil)

var errClosed = errors.New("deepgram: session is closed")

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the provider-level default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      "nova-3",
		language:   "en",
		sampleRate: 16000,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
// It respects cfg.SampleRate, cfg.Language, and cfg.Keywords.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	endpoint, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	st := &stream{
		conn:     conn,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	st.wg.Add(2)
	go st.receive(ctx)
	go st.transmit(ctx)
	return st, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(listenEndpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	} else {
		q.Set("language", p.language)
	}
	if cfg.SampleRate != 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	} else {
		q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "macchiato:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// stream is a live Deepgram session. It implements stt.SessionHandle.
type stream struct {
	conn     *websocket.Conn
	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *stream) SendAudio(chunk []byte) error {
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errClosed
	}
}

// Partials returns the channel of interim transcripts.
func (s *stream) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *stream) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords returns an error: Deepgram does not support mid-stream keyword
// updates. Pass keywords in StreamConfig instead.
func (s *stream) SetKeywords([]types.KeywordBoost) error {
	return fmt.Errorf("deepgram: %w", stt.ErrNotSupported)
}

// Close terminates the session cleanly. Deepgram flushes any buffered audio
// when it sees a CloseStream control message.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// transmit forwards queued audio to the socket as binary frames. On shutdown
// it drains whatever is still buffered so the tail of an utterance is not lost.
func (s *stream) transmit(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if s.conn.Write(ctx, websocket.MessageBinary, chunk) != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// receive reads Results events off the socket and routes transcripts to the
// partial or final channel.
func (s *stream) receive(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}

		t, ok := parseResponse(msg)
		if !ok {
			continue
		}

		dest := s.partials
		if t.IsFinal {
			dest = s.finals
		}
		select {
		case dest <- t:
		case <-s.done:
		}
	}
}

// resultsEvent mirrors the subset of Deepgram's Results payload we consume.
type resultsEvent struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string      `json:"transcript"`
			Confidence float64     `json:"confidence"`
			Words      []eventWord `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type eventWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// parseResponse parses a raw Deepgram WebSocket message into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the message
// should be ignored.
func parseResponse(data []byte) (types.Transcript, bool) {
	var ev resultsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return types.Transcript{}, false
	}
	if ev.Type != "Results" || len(ev.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	alt := ev.Channel.Alternatives[0]
	t := types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    ev.IsFinal,
		Confidence: alt.Confidence,
	}
	for _, w := range alt.Words {
		t.Words = append(t.Words, types.WordDetail{
			Word:       w.Word,
			Start:      secondsToDuration(w.Start),
			End:        secondsToDuration(w.End),
			Confidence: w.Confidence,
		})
	}
	return t, true
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
