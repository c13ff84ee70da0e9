package observe

import (
	"fmt"
	"sync"

	"github.com/averro/voiceline/pkg/provider/llm"
)

// UsageCollector accumulates token usage across every LLM round of a
// session. Register Collect as the engine's usage callback and log Summary
// from a shutdown callback. Safe for concurrent use.
type UsageCollector struct {
	mu     sync.Mutex
	total  llm.Usage
	rounds int
}

// Collect folds one round's usage into the running total.
func (c *UsageCollector) Collect(u llm.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total.Add(u)
	c.rounds++
}

// Total returns the accumulated usage and the number of rounds collected.
func (c *UsageCollector) Total() (llm.Usage, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, c.rounds
}

// Summary renders the accumulated usage as a single log-friendly line.
func (c *UsageCollector) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("llm_rounds=%d prompt_tokens=%d completion_tokens=%d total_tokens=%d",
		c.rounds, c.total.PromptTokens, c.total.CompletionTokens, c.total.TotalTokens)
}
