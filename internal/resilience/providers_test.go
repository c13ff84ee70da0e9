package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/averro/voiceline/pkg/provider/llm"
	llmmock "github.com/averro/voiceline/pkg/provider/llm/mock"
	"github.com/averro/voiceline/pkg/provider/stt"
	sttmock "github.com/averro/voiceline/pkg/provider/stt/mock"
	ttsmock "github.com/averro/voiceline/pkg/provider/tts/mock"
	"github.com/averro/voiceline/pkg/types"
)

func TestLLMFailover_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "from primary"}},
	}
	fallback := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "from fallback"}},
	}

	f := NewLLMFailover("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q, want primary response", resp.Content)
	}
	if len(fallback.Calls()) != 0 {
		t.Error("fallback was called although primary succeeded")
	}
}

func TestLLMFailover_FallsBack(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errBackend}
	fallback := &llmmock.Provider{
		CompleteResponses: []*llm.CompletionResponse{{Content: "from fallback"}},
	}

	f := NewLLMFailover("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("Content = %q, want fallback response", resp.Content)
	}
}

func TestLLMFailover_AllFail(t *testing.T) {
	f := NewLLMFailover("primary", &llmmock.Provider{CompleteErr: errBackend}, BreakerConfig{})
	f.Add("fallback", &llmmock.Provider{CompleteErr: errBackend})

	_, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestLLMFailover_Capabilities(t *testing.T) {
	primary := &llmmock.Provider{
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	f := NewLLMFailover("primary", primary, BreakerConfig{})

	if !f.Capabilities().SupportsToolCalling {
		t.Error("Capabilities() did not come from the primary")
	}
}

func TestSTTFailover_FallsBack(t *testing.T) {
	primary := &sttmock.Provider{StartErr: errBackend}
	fallback := &sttmock.Provider{}

	f := NewSTTFailover("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	sess, err := f.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if got := fallback.Configs(); len(got) != 1 || got[0].SampleRate != 16000 {
		t.Errorf("fallback configs = %+v, want one with the requested format", got)
	}
}

func TestTTSFailover_FallsBack(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errBackend}
	fallback := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}}}

	f := NewTTSFailover("primary", primary, BreakerConfig{})
	f.Add("fallback", fallback)

	text := make(chan string)
	close(text)
	audio, err := f.SynthesizeStream(context.Background(), text, types.VoiceProfile{ID: "en-US-matthew"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var total int
	for chunk := range audio {
		total += len(chunk)
	}
	if total == 0 {
		t.Error("no audio from fallback backend")
	}
}
