// Package wellness implements the daily wellness check-in assistant.
//
// The assistant collects mood, energy, and a few goals for the day, then
// persists the check-in through its save_checkin tool. When earlier check-ins
// exist, the system prompt references the most recent one so returning users
// get continuity.
package wellness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/journal"
	"github.com/averro/voiceline/internal/tools"
	"github.com/averro/voiceline/pkg/types"
)

// Kind is the registry key for this assistant.
const Kind = "wellness"

const defaultGreeting = "Hello! Let's take a moment to check in. How are you feeling today?"

const baseInstructions = `You are a gentle, supportive daily wellness companion.
You are NOT a doctor. Do NOT diagnose. Keep all advice simple and practical.

Start the conversation by greeting the user warmly.
Ask about:
1. Mood
2. Energy level
3. A few simple goals for today

After collecting:
- Provide a short simple reflection or encouragement.
- Then recap the mood, energy, and the 1-3 goals for today.
- Ask: "Does this sound right?"

Then call the save_checkin tool with the mood, energy, goals (list), and a
short summary sentence.

After saving, thank the user gently and end.`

func init() {
	assistant.Register(Kind, func(p assistant.Params) (assistant.Assistant, error) {
		if p.DataFile == "" {
			return nil, fmt.Errorf("wellness: data file path required")
		}
		return &Wellness{
			name:     p.Name,
			greeting: p.Greeting,
			extra:    p.ExtraInstructions,
			log:      journal.NewCheckinLog(p.DataFile),
			now:      time.Now,
		}, nil
	})
}

// Wellness is the check-in assistant. Safe for concurrent use; all state
// lives in the underlying journal.
type Wellness struct {
	name     string
	greeting string
	extra    string
	log      *journal.CheckinLog
	now      func() time.Time
}

var _ assistant.Assistant = (*Wellness)(nil)

func (w *Wellness) Name() string { return w.name }
func (w *Wellness) Kind() string { return Kind }

// Instructions builds the system prompt, referencing the most recent
// check-in when one exists.
func (w *Wellness) Instructions() string {
	var b strings.Builder
	b.WriteString(baseInstructions)
	if last, ok := w.log.Last(); ok {
		fmt.Fprintf(&b, "\n\nEarlier check-ins exist. Casually reference the last one, for example: "+
			"\"Last time we talked, you said your mood was '%s' and energy was '%s'.\"",
			last.Mood, last.Energy)
	}
	if w.extra != "" {
		b.WriteString("\n\n")
		b.WriteString(w.extra)
	}
	return b.String()
}

func (w *Wellness) Greeting() string {
	if w.greeting != "" {
		return w.greeting
	}
	return defaultGreeting
}

// checkinArgs mirrors the save_checkin tool's JSON argument schema.
type checkinArgs struct {
	Mood    string   `json:"mood"`
	Energy  string   `json:"energy"`
	Goals   []string `json:"goals"`
	Summary string   `json:"summary"`
}

// Tools returns the save_checkin tool.
func (w *Wellness) Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        "save_checkin",
			Description: "Save the completed daily wellness check-in.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"mood":    map[string]any{"type": "string", "description": "The user's self-reported mood."},
					"energy":  map[string]any{"type": "string", "description": "The user's self-reported energy level."},
					"goals":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "The user's goals for today."},
					"summary": map[string]any{"type": "string", "description": "A short summary sentence of the check-in."},
				},
				"required": []string{"mood", "energy", "goals", "summary"},
			},
		},
		Handler: w.saveCheckin,
	}}
}

func (w *Wellness) saveCheckin(_ context.Context, args string) (string, error) {
	var in checkinArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("wellness: decode save_checkin args: %w", err)
	}
	rec := journal.CheckinRecord{
		Timestamp: w.now(),
		Mood:      in.Mood,
		Energy:    in.Energy,
		Goals:     in.Goals,
		Summary:   in.Summary,
	}
	if err := w.log.Append(rec); err != nil {
		return "", fmt.Errorf("wellness: save check-in: %w", err)
	}
	return "Daily check-in saved successfully.", nil
}
