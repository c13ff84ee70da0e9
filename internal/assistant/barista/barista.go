// Package barista implements the coffee-order assistant.
//
// The assistant walks a customer through drink, size, milk, extras, and a
// pickup name, then persists the order through its save_order tool. Heard
// menu terms are normalised against the shop vocabulary before saving, so
// "machiato" lands in the order file as "macchiato".
package barista

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/journal"
	"github.com/averro/voiceline/internal/menu"
	"github.com/averro/voiceline/internal/tools"
	"github.com/averro/voiceline/pkg/types"
)

// Kind is the registry key for this assistant.
const Kind = "barista"

const defaultGreeting = "Hi, welcome in! What can I get started for you today?"

const baseInstructions = `You are a friendly coffee shop barista taking a spoken order.
Keep replies short and natural, one question at a time.

Collect, in any order the customer offers them:
1. Drink type
2. Size
3. Milk preference (if the drink takes milk)
4. Any extras (syrups, extra shots, whipped cream)
5. A name for the order

When everything is collected, read the full order back and ask:
"Did I get that right?"

Then call the save_order tool with the drinkType, size, milk,
extras (list), and name.

After saving, confirm the order is in and tell the customer it will be
ready shortly.`

func init() {
	assistant.Register(Kind, func(p assistant.Params) (assistant.Assistant, error) {
		if p.DataFile == "" {
			return nil, fmt.Errorf("barista: data file path required")
		}
		return &Barista{
			name:       p.Name,
			greeting:   p.Greeting,
			extra:      p.ExtraInstructions,
			orders:     journal.NewOrderFile(p.DataFile),
			normalizer: menu.New(menu.DefaultDrinks(), menu.DefaultSizes(), menu.DefaultMilks()),
		}, nil
	})
}

// Barista is the coffee-order assistant.
type Barista struct {
	name       string
	greeting   string
	extra      string
	orders     *journal.OrderFile
	normalizer *menu.Normalizer
}

var _ assistant.Assistant = (*Barista)(nil)

func (b *Barista) Name() string { return b.name }
func (b *Barista) Kind() string { return Kind }

func (b *Barista) Instructions() string {
	if b.extra == "" {
		return baseInstructions
	}
	var sb strings.Builder
	sb.WriteString(baseInstructions)
	sb.WriteString("\n\n")
	sb.WriteString(b.extra)
	return sb.String()
}

func (b *Barista) Greeting() string {
	if b.greeting != "" {
		return b.greeting
	}
	return defaultGreeting
}

// orderArgs mirrors the save_order tool's JSON argument schema.
type orderArgs struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
}

// Tools returns the save_order tool.
func (b *Barista) Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        "save_order",
			Description: "Save the completed coffee order, replacing any previous one.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"drinkType": map[string]any{"type": "string", "description": "The drink the customer ordered."},
					"size":      map[string]any{"type": "string", "description": "The drink size."},
					"milk":      map[string]any{"type": "string", "description": "The milk preference, empty if none."},
					"extras":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Extras such as syrups or extra shots."},
					"name":      map[string]any{"type": "string", "description": "The name for the order."},
				},
				"required": []string{"drinkType", "size", "name"},
			},
		},
		Handler: b.saveOrder,
	}}
}

func (b *Barista) saveOrder(_ context.Context, args string) (string, error) {
	var in orderArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("barista: decode save_order args: %w", err)
	}
	rec := journal.OrderRecord{
		DrinkType: b.normalize(in.DrinkType),
		Size:      b.normalize(in.Size),
		Milk:      b.normalize(in.Milk),
		Extras:    in.Extras,
		Name:      in.Name,
	}
	if err := b.orders.Save(rec); err != nil {
		return "", fmt.Errorf("barista: save order: %w", err)
	}
	return "Order saved.", nil
}

// normalize maps a heard term onto the canonical menu spelling, passing
// unknown terms through unchanged.
func (b *Barista) normalize(heard string) string {
	if heard == "" {
		return ""
	}
	if canonical, ok := b.normalizer.Match(heard); ok {
		return canonical
	}
	return heard
}
