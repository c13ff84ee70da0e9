// Package whisper provides an STT provider backed by a local whisper-server
// (whisper.cpp) instance exposing POST /inference.
//
// whisper.cpp is a batch engine, so the provider fakes streaming: incoming PCM
// is buffered per session, an energy gate segments utterances, and each
// completed segment is submitted as one inference request. The same text is
// emitted on both Partials and Finals once the segment is transcribed; there
// are no true low-latency partials.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/types"
)

const (
	// silenceRMS is the RMS energy (16-bit PCM units, max 32767) below which
	// a chunk counts as silence. 300 is near-silence on typical mic input.
	silenceRMS = 300.0

	defaultLanguage    = "en"
	defaultSampleRate  = 16000
	defaultHoldMs      = 500
	defaultMaxBufferMs = 10_000
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model name forwarded to whisper-server (e.g. "base.en").
// Empty means the server's startup model, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language hint sent with each inference request.
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the expected PCM sample rate in Hz. Must match the audio
// actually pushed through SendAudio. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceHoldMs sets how much consecutive trailing silence (ms) ends an
// utterance and triggers inference. Defaults to 500.
func WithSilenceHoldMs(ms int) Option {
	return func(p *Provider) { p.holdMs = ms }
}

// WithMaxBufferMs caps how much audio (ms) may accumulate before a flush is
// forced mid-speech. Bounds memory during continuous talking. Defaults to
// 10000.
func WithMaxBufferMs(ms int) Option {
	return func(p *Provider) { p.maxBufferMs = ms }
}

// Provider implements stt.Provider against a whisper-server HTTP endpoint.
// Sessions are independent; each owns its buffer and worker goroutine.
type Provider struct {
	serverURL   string
	model       string
	language    string
	sampleRate  int
	holdMs      int
	maxBufferMs int
	client      *http.Client
}

// New creates a Provider talking to the whisper-server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:   serverURL,
		language:    defaultLanguage,
		sampleRate:  defaultSampleRate,
		holdMs:      defaultHoldMs,
		maxBufferMs: defaultMaxBufferMs,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a transcription session. No network traffic happens until
// the first utterance flush.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		serverURL:   p.serverURL,
		model:       p.model,
		language:    lang,
		sampleRate:  sr,
		channels:    ch,
		holdMs:      p.holdMs,
		maxBufferMs: p.maxBufferMs,
		client:      p.client,

		audioCh:  make(chan []byte, 256),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run(ctx)

	return s, nil
}

// session implements stt.SessionHandle. All buffering and silence-tracking
// state lives inside run to keep it race-free without locks.
type session struct {
	serverURL   string
	model       string
	language    string
	sampleRate  int
	channels    int
	holdMs      int
	maxBufferMs int
	client      *http.Client

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues raw 16-bit LE PCM for segmentation. Returns an error after
// Close.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords reports ErrNotSupported; whisper.cpp has no boosting API.
func (s *session) SetKeywords(_ []types.KeywordBoost) error {
	return fmt.Errorf("whisper: keyword boosting: %w", stt.ErrNotSupported)
}

// Close flushes any buffered speech as a last inference, then closes the
// transcript channels. Safe to call multiple times.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run owns the utterance buffer: it gates chunks on RMS energy, accumulates
// speech, and flushes to the server once trailing silence exceeds holdMs or
// the buffer outgrows maxBufferMs.
func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * s.channels * 2 / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferMs * bytesPerMs

	flush := func(flushCtx context.Context) {
		defer func() {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
		}()
		if len(buffer) == 0 || !hadSpeech {
			return
		}

		text, err := s.infer(flushCtx, buffer)
		if err != nil || text == "" {
			return
		}

		// Channels are buffered; skip rather than block during shutdown.
		select {
		case s.partials <- types.Transcript{Text: text}:
		default:
		}
		select {
		case s.finals <- types.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return

		case <-s.done:
			finalFlush()
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				finalFlush()
				return
			}

			rms := audio.RMS(chunk)
			chunkMs := audio.DurationMs(len(chunk), s.sampleRate, s.channels)

			if rms < silenceRMS {
				// Leading silence is dropped; trailing silence is kept so the
				// segment ends naturally.
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.holdMs {
						flush(ctx)
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					flush(ctx)
				}
			}
		}
	}
}

// infer wraps pcm in a WAV container and POSTs it to /inference.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	wav := audio.EncodeWAV(pcm, s.sampleRate, s.channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
