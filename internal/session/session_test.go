package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/assistant/wellness"
	enginemock "github.com/averro/voiceline/internal/engine/mock"
	"github.com/averro/voiceline/internal/history"
	"github.com/averro/voiceline/internal/observe"
	"github.com/averro/voiceline/internal/session"
	"github.com/averro/voiceline/internal/tools"
	"github.com/averro/voiceline/internal/turndetect"
	audiomock "github.com/averro/voiceline/pkg/audio/mock"
	denoisemock "github.com/averro/voiceline/pkg/provider/denoise/mock"
	sttmock "github.com/averro/voiceline/pkg/provider/stt/mock"
	"github.com/averro/voiceline/pkg/provider/vad"
	vadmock "github.com/averro/voiceline/pkg/provider/vad/mock"
	"github.com/averro/voiceline/pkg/types"
)

// fastTurn trips end-of-turn after one 20ms speech frame and two silence
// frames, keeping tests quick.
var fastTurn = turndetect.Config{SilenceHoldMs: 40, MinSpeechMs: 20, FrameSizeMs: 20}

func testAssistant(t *testing.T) assistant.Assistant {
	t.Helper()
	a, err := assistant.New(wellness.Kind, assistant.Params{
		Name:     "daily-checkin",
		DataFile: filepath.Join(t.TempDir(), "wellness_log.json"),
	})
	if err != nil {
		t.Fatalf("build assistant: %v", err)
	}
	return a
}

type fixture struct {
	conn   *audiomock.Connection
	eng    *enginemock.Engine
	stt    *sttmock.Session
	vadS   *vadmock.Session
	sess   *session.Session
	runErr chan error
}

func newFixture(t *testing.T, mutate func(*session.Deps)) *fixture {
	t.Helper()

	f := &fixture{
		conn:   audiomock.NewConnection(),
		eng:    enginemock.New(),
		stt:    sttmock.NewSession(),
		vadS:   &vadmock.Session{Default: vad.Event{Type: vad.Silence}},
		runErr: make(chan error, 1),
	}
	f.eng.ReplyText = "Noted. Anything else?"
	f.eng.AudioChunks = [][]byte{{1, 2, 3}}

	deps := session.Deps{
		Conn:      f.conn,
		Engine:    f.eng,
		Assistant: testAssistant(t),
		STT:       &sttmock.Provider{Session: f.stt},
		VAD:       &vadmock.Engine{Session: f.vadS},
	}
	if mutate != nil {
		mutate(&deps)
	}

	sess, err := session.New(session.Config{
		ID:            "sess-1",
		Turn:          fastTurn,
		GreetingDelay: time.Millisecond,
	}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.sess = sess
	return f
}

func (f *fixture) run(t *testing.T, ctx context.Context) {
	t.Helper()
	go func() { f.runErr <- f.sess.Run(ctx) }()
}

func (f *fixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.runErr:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

// drainOutput keeps the connection's output channel flowing so playback
// never blocks, and returns played frames via the returned func.
func drainOutput(conn *audiomock.Connection) func() []types.AudioFrame {
	var frames []types.AudioFrame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fr := range conn.Out {
			frames = append(frames, fr)
		}
	}()
	return func() []types.AudioFrame {
		close(conn.Out)
		<-done
		return frames
	}
}

func frame() types.AudioFrame {
	return types.AudioFrame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := session.New(session.Config{}, session.Deps{})
	if err == nil {
		t.Fatal("expected error for empty deps")
	}
}

func TestRunSpeaksGreetingAndStopsOnDisconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	played := drainOutput(f.conn)

	f.run(t, context.Background())
	time.Sleep(100 * time.Millisecond)
	_ = f.conn.Disconnect()

	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	says := f.eng.SayCalls()
	if len(says) != 1 || says[0] != "Hello! Let's take a moment to check in. How are you feeling today?" {
		t.Errorf("greeting calls = %v", says)
	}
	if got := played(); len(got) == 0 {
		t.Error("greeting audio never reached the connection")
	}
}

func TestRunFullTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	played := drainOutput(f.conn)
	f.run(t, context.Background())
	time.Sleep(50 * time.Millisecond)

	// One speech frame then silence frames trip the turn detector.
	f.vadS.Script(
		vad.Event{Type: vad.SpeechStart},
		vad.Event{Type: vad.Silence},
		vad.Event{Type: vad.Silence},
	)
	f.stt.EmitFinal("my mood is good")
	for i := 0; i < 3; i++ {
		f.conn.PushInput(frame())
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(f.eng.RespondCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := f.eng.RespondCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 respond call, got %d", len(calls))
	}
	if calls[0].UserText != "my mood is good" {
		t.Errorf("user text = %q", calls[0].UserText)
	}
	if calls[0].Prompt.Instructions == "" {
		t.Error("instructions not passed to engine")
	}
	if len(calls[0].Prompt.Messages) != 0 {
		t.Errorf("first turn should start with empty history, got %+v", calls[0].Prompt.Messages)
	}
	if got := played(); len(got) < 2 {
		t.Errorf("expected greeting + reply audio, got %d frames", len(got))
	}
	if f.stt.Audio() == nil {
		t.Error("no audio reached the STT session")
	}
}

func TestRunCarriesConversationHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()
	f.run(t, context.Background())
	time.Sleep(50 * time.Millisecond)

	for turn := 0; turn < 2; turn++ {
		f.vadS.Script(
			vad.Event{Type: vad.SpeechStart},
			vad.Event{Type: vad.Silence},
			vad.Event{Type: vad.Silence},
		)
		f.stt.EmitFinal("hello again")
		for i := 0; i < 3; i++ {
			f.conn.PushInput(frame())
		}
		deadline := time.Now().Add(3 * time.Second)
		for len(f.eng.RespondCalls()) <= turn && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}

	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	calls := f.eng.RespondCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 respond calls, got %d", len(calls))
	}
	second := calls[1].Prompt.Messages
	if len(second) != 2 {
		t.Fatalf("second turn history = %+v", second)
	}
	if second[0].Role != "user" || second[0].Content != "hello again" {
		t.Errorf("history user turn = %+v", second[0])
	}
	if second[1].Role != "assistant" || second[1].Content != "Noted. Anything else?" {
		t.Errorf("history assistant turn = %+v", second[1])
	}
}

func TestRunIgnoresTurnWithoutTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()
	f.run(t, context.Background())
	time.Sleep(50 * time.Millisecond)

	// End of turn fires but the STT provider commits nothing.
	f.vadS.Script(
		vad.Event{Type: vad.SpeechStart},
		vad.Event{Type: vad.Silence},
		vad.Event{Type: vad.Silence},
	)
	for i := 0; i < 3; i++ {
		f.conn.PushInput(frame())
	}
	time.Sleep(200 * time.Millisecond)

	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls := f.eng.RespondCalls(); len(calls) != 0 {
		t.Errorf("respond called with no transcript: %+v", calls)
	}
}

func TestRunDenoiseStage(t *testing.T) {
	t.Parallel()

	denSess := &denoisemock.Session{}
	den := &denoisemock.Processor{Session: denSess}
	f := newFixture(t, func(d *session.Deps) { d.Denoise = den })
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()
	f.run(t, context.Background())
	time.Sleep(50 * time.Millisecond)

	f.conn.PushInput(frame())
	time.Sleep(50 * time.Millisecond)

	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(den.Configs()) != 1 {
		t.Fatalf("expected 1 denoise session, got %d", len(den.Configs()))
	}
	if denSess.Frames() == 0 {
		t.Error("no frames flowed through the denoise stage")
	}
	if !denSess.Closed() {
		t.Error("denoise session not closed on teardown")
	}
}

func TestRunPersistsTranscripts(t *testing.T) {
	t.Parallel()

	store := history.NewMemStore()
	f := newFixture(t, func(d *session.Deps) { d.Store = store })
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()
	f.run(t, context.Background())
	time.Sleep(100 * time.Millisecond)

	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The greeting alone produces one assistant entry.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := store.Entries(context.Background(), "sess-1", 0)
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		if len(entries) > 0 {
			if entries[0].Role != history.RoleAssistant {
				t.Errorf("entry = %+v", entries[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no transcript entries persisted")
}

func TestToolExecutionBridgesRegistry(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	f := newFixture(t, func(d *session.Deps) { d.Tools = reg })

	// The wellness save_checkin tool must be offered to the engine.
	found := false
	for _, def := range f.eng.Tools() {
		if def.Name == "save_checkin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("save_checkin not registered with engine: %+v", f.eng.Tools())
	}

	handler := f.eng.ToolHandler()
	if handler == nil {
		t.Fatal("tool handler not installed")
	}
	out, err := handler(context.Background(), "save_checkin",
		`{"mood":"fine","energy":"ok","goals":["rest"],"summary":"ok day"}`)
	if err != nil {
		t.Fatalf("tool execution: %v", err)
	}
	if out != "Daily check-in saved successfully." {
		t.Errorf("tool output = %q", out)
	}

	if _, err := handler(context.Background(), "no_such_tool", "{}"); !errors.Is(err, tools.ErrToolNotFound) {
		t.Errorf("unknown tool error = %v", err)
	}
}

func TestToolExecutionRecordsDuration(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := newFixture(t, func(d *session.Deps) {
		d.Tools = tools.NewRegistry()
		d.Metrics = m
	})

	handler := f.eng.ToolHandler()
	if _, err := handler(context.Background(), "save_checkin",
		`{"mood":"fine","energy":"ok","goals":["rest"],"summary":"ok day"}`); err != nil {
		t.Fatalf("tool execution: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var hist *metricdata.Histogram[float64]
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == "voiceline.tool_execution.duration" {
				if h, ok := sm.Metrics[i].Data.(metricdata.Histogram[float64]); ok {
					hist = &h
				}
			}
		}
	}
	if hist == nil {
		t.Fatal("tool execution duration not recorded")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data points: %+v", hist.DataPoints)
	}
}

func TestShutdownCallbacksRunInReverseOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()

	var order []int
	f.sess.OnShutdown(func(context.Context) { order = append(order, 1) })
	f.sess.OnShutdown(func(context.Context) { order = append(order, 2) })

	f.run(t, context.Background())
	time.Sleep(50 * time.Millisecond)
	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("shutdown order = %v", order)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	f.run(t, ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := f.wait(t); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}

func TestUsageSummaryAccumulates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.eng.Usage.PromptTokens = 11
	f.eng.Usage.CompletionTokens = 4
	f.eng.Usage.TotalTokens = 15
	defer close(f.conn.Out)
	go func() {
		for range f.conn.Out {
		}
	}()
	f.run(t, context.Background())
	time.Sleep(50 * time.Millisecond)

	f.vadS.Script(
		vad.Event{Type: vad.SpeechStart},
		vad.Event{Type: vad.Silence},
		vad.Event{Type: vad.Silence},
	)
	f.stt.EmitFinal("hi")
	for i := 0; i < 3; i++ {
		f.conn.PushInput(frame())
	}
	deadline := time.Now().Add(3 * time.Second)
	for len(f.eng.RespondCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	_ = f.conn.Disconnect()
	if err := f.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	summary := f.sess.Usage()
	if summary != "llm_rounds=1 prompt_tokens=11 completion_tokens=4 total_tokens=15" {
		t.Errorf("usage summary = %q", summary)
	}
}
