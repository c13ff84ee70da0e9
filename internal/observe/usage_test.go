package observe

import (
	"strings"
	"sync"
	"testing"

	"github.com/averro/voiceline/pkg/provider/llm"
)

func TestUsageCollectorAccumulates(t *testing.T) {
	t.Parallel()

	var c UsageCollector
	c.Collect(llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	c.Collect(llm.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28})

	total, rounds := c.Total()
	if rounds != 2 {
		t.Errorf("rounds = %d", rounds)
	}
	if total.PromptTokens != 30 || total.CompletionTokens != 13 || total.TotalTokens != 43 {
		t.Errorf("total = %+v", total)
	}
}

func TestUsageCollectorSummary(t *testing.T) {
	t.Parallel()

	var c UsageCollector
	c.Collect(llm.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})

	s := c.Summary()
	for _, want := range []string{"llm_rounds=1", "prompt_tokens=7", "completion_tokens=3", "total_tokens=10"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary %q missing %q", s, want)
		}
	}
}

func TestUsageCollectorConcurrent(t *testing.T) {
	t.Parallel()

	var c UsageCollector
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Collect(llm.Usage{TotalTokens: 1})
		}()
	}
	wg.Wait()

	total, rounds := c.Total()
	if rounds != 50 || total.TotalTokens != 50 {
		t.Errorf("rounds=%d total=%+v", rounds, total)
	}
}
