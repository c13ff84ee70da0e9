// Package wavfile implements audio.Platform on local WAV files.
//
// Connect reads the target file as the caller's input, slicing it into fixed
// frames, and collects everything written to Output into a second WAV file on
// Disconnect. It is the transport used for offline runs and end-to-end
// pipeline tests where no live audio device is available.
package wavfile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/types"
)

const (
	defaultFrameMs    = 20
	defaultSampleRate = 16000
)

var _ audio.Platform = (*Platform)(nil)
var _ audio.Connection = (*connection)(nil)

// Option configures a Platform.
type Option func(*Platform)

// WithOutputPath sets the file that synthesized output is written to on
// Disconnect. Empty (the default) discards output audio.
func WithOutputPath(path string) Option {
	return func(p *Platform) { p.outputPath = path }
}

// WithFrameMs sets the duration of each input frame in milliseconds.
// Defaults to 20.
func WithFrameMs(ms int) Option {
	return func(p *Platform) { p.frameMs = ms }
}

// WithRealtime makes the input stream pace frames at playback speed instead
// of delivering them as fast as the consumer reads. Useful when exercising
// silence-based turn detection against recorded audio.
func WithRealtime(enabled bool) Option {
	return func(p *Platform) { p.realtime = enabled }
}

// Platform implements audio.Platform over WAV files on disk.
type Platform struct {
	outputPath string
	frameMs    int
	realtime   bool
}

// New creates a file-backed audio platform.
func New(opts ...Option) *Platform {
	p := &Platform{frameMs: defaultFrameMs}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect opens target as a 16-bit PCM WAV file and starts streaming its
// frames on the returned connection's Input channel. The channel is closed
// once the file is exhausted.
func (p *Platform) Connect(ctx context.Context, target string) (audio.Connection, error) {
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("wavfile: read %s: %w", target, err)
	}
	pcm, info, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode %s: %w", target, err)
	}

	c := &connection{
		outputPath: p.outputPath,
		sampleRate: info.SampleRate,
		channels:   info.Channels,
		input:      make(chan types.AudioFrame, 64),
		output:     make(chan types.AudioFrame, 64),
		done:       make(chan struct{}),
	}

	c.wg.Add(2)
	go c.feedInput(ctx, pcm, p.frameMs, p.realtime)
	go c.collectOutput()

	return c, nil
}

type connection struct {
	outputPath string
	sampleRate int
	channels   int

	input  chan types.AudioFrame
	output chan types.AudioFrame

	mu            sync.Mutex
	eventCb       func(audio.Event)
	pending       []audio.Event
	captured      []byte
	outSampleRate int
	outChannels   int

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (c *connection) Input() <-chan types.AudioFrame { return c.input }

func (c *connection) Output() chan<- types.AudioFrame { return c.output }

// OnEvent registers cb and replays any events that fired before registration.
// File streams are short; CONNECTED can beat the caller to this call.
func (c *connection) OnEvent(cb func(audio.Event)) {
	c.mu.Lock()
	c.eventCb = cb
	backlog := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ev := range backlog {
		cb(ev)
	}
}

func (c *connection) emit(ev audio.Event) {
	c.mu.Lock()
	cb := c.eventCb
	if cb == nil {
		c.pending = append(c.pending, ev)
	}
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// feedInput slices pcm into frameMs-sized frames and delivers them on the
// input channel, optionally pacing at playback speed.
func (c *connection) feedInput(ctx context.Context, pcm []byte, frameMs int, realtime bool) {
	defer c.wg.Done()
	defer close(c.input)

	c.emit(audio.Event{Type: audio.EventConnected, ParticipantID: "file"})
	defer c.emit(audio.Event{Type: audio.EventDisconnected, ParticipantID: "file"})

	frameBytes := c.sampleRate * c.channels * 2 * frameMs / 1000
	if frameBytes <= 0 {
		frameBytes = 640
	}
	byteRate := c.sampleRate * c.channels * 2

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(time.Duration(frameMs) * time.Millisecond)
		defer ticker.Stop()
	}

	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		frame := types.AudioFrame{
			Data:       pcm[off:end],
			SampleRate: c.sampleRate,
			Channels:   c.channels,
			Timestamp:  time.Duration(off) * time.Second / time.Duration(byteRate),
		}

		if realtime {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}

		select {
		case c.input <- frame:
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// collectOutput appends every output frame's PCM until Disconnect. The first
// frame's format is remembered so the recording is encoded at the rate the
// audio was synthesised at, not the input file's.
func (c *connection) collectOutput() {
	defer c.wg.Done()
	for {
		select {
		case frame := <-c.output:
			c.capture(frame)
		case <-c.done:
			// Drain whatever is already buffered.
			for {
				select {
				case frame := <-c.output:
					c.capture(frame)
				default:
					return
				}
			}
		}
	}
}

func (c *connection) capture(frame types.AudioFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outSampleRate == 0 && frame.SampleRate > 0 {
		c.outSampleRate = frame.SampleRate
		c.outChannels = frame.Channels
	}
	c.captured = append(c.captured, frame.Data...)
}

// Disconnect stops both streams and, when an output path is configured,
// writes the captured output audio as a WAV file.
func (c *connection) Disconnect() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.wg.Wait()

		if c.outputPath == "" {
			return
		}
		c.mu.Lock()
		pcm := c.captured
		sr := c.outSampleRate
		ch := c.outChannels
		c.mu.Unlock()

		if sr <= 0 {
			sr = c.sampleRate
		}
		if sr <= 0 {
			sr = defaultSampleRate
		}
		if ch <= 0 {
			ch = 1
		}
		wav := audio.EncodeWAV(pcm, sr, ch)
		if werr := os.WriteFile(c.outputPath, wav, 0o644); werr != nil {
			err = fmt.Errorf("wavfile: write %s: %w", c.outputPath, werr)
		}
	})
	return err
}
