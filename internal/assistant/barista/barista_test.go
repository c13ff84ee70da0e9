package barista_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/assistant/barista"
	"github.com/averro/voiceline/internal/journal"
)

func newBarista(t *testing.T, dataFile string) assistant.Assistant {
	t.Helper()
	a, err := assistant.New(barista.Kind, assistant.Params{
		Name:     "counter",
		DataFile: dataFile,
	})
	if err != nil {
		t.Fatalf("build barista assistant: %v", err)
	}
	return a
}

func TestSaveOrderOverwritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "order.json")
	a := newBarista(t, path)

	toolset := a.Tools()
	if len(toolset) != 1 || toolset[0].Definition.Name != "save_order" {
		t.Fatalf("unexpected tools: %+v", toolset)
	}
	handler := toolset[0].Handler

	out, err := handler(context.Background(),
		`{"drinkType":"latte","size":"large","milk":"oat","extras":["vanilla"],"name":"Sam"}`)
	if err != nil {
		t.Fatalf("save_order: %v", err)
	}
	if out != "Order saved." {
		t.Errorf("confirmation = %q", out)
	}

	if _, err := handler(context.Background(),
		`{"drinkType":"espresso","size":"small","milk":"","extras":[],"name":"Ada"}`); err != nil {
		t.Fatalf("second save_order: %v", err)
	}

	rec, ok := journal.NewOrderFile(path).Load()
	if !ok {
		t.Fatal("order file missing after save")
	}
	if rec.DrinkType != "espresso" || rec.Name != "Ada" {
		t.Errorf("file not overwritten with latest order: %+v", rec)
	}
}

func TestSaveOrderNormalizesMenuTerms(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "order.json")
	a := newBarista(t, path)

	_, err := a.Tools()[0].Handler(context.Background(),
		`{"drinkType":"machiato","size":"larg","milk":"ot milk","extras":["caramel drizzle"],"name":"Kit"}`)
	if err != nil {
		t.Fatalf("save_order: %v", err)
	}

	rec, ok := journal.NewOrderFile(path).Load()
	if !ok {
		t.Fatal("order file missing")
	}
	if rec.DrinkType != "macchiato" {
		t.Errorf("drink not normalised: %q", rec.DrinkType)
	}
	if rec.Size != "large" {
		t.Errorf("size not normalised: %q", rec.Size)
	}
	// Extras stay free text.
	if len(rec.Extras) != 1 || rec.Extras[0] != "caramel drizzle" {
		t.Errorf("extras altered: %v", rec.Extras)
	}
}

func TestSaveOrderPassesUnknownTermsThrough(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "order.json")
	a := newBarista(t, path)

	_, err := a.Tools()[0].Handler(context.Background(),
		`{"drinkType":"turmeric tonic","size":"medium","milk":"","name":"Jo"}`)
	if err != nil {
		t.Fatalf("save_order: %v", err)
	}
	rec, _ := journal.NewOrderFile(path).Load()
	if rec.DrinkType != "turmeric tonic" {
		t.Errorf("unknown drink rewritten: %q", rec.DrinkType)
	}
	if rec.Milk != "" {
		t.Errorf("empty milk rewritten: %q", rec.Milk)
	}
}

func TestSaveOrderRejectsMalformedArgs(t *testing.T) {
	t.Parallel()

	a := newBarista(t, filepath.Join(t.TempDir(), "order.json"))
	if _, err := a.Tools()[0].Handler(context.Background(), "{"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGreetingAndInstructions(t *testing.T) {
	t.Parallel()

	a := newBarista(t, filepath.Join(t.TempDir(), "order.json"))
	if !strings.Contains(a.Greeting(), "welcome") {
		t.Errorf("default greeting = %q", a.Greeting())
	}
	if !strings.Contains(a.Instructions(), "save_order") {
		t.Error("instructions never mention the save_order tool")
	}
	if a.Kind() != "barista" {
		t.Errorf("Kind = %q", a.Kind())
	}
}
