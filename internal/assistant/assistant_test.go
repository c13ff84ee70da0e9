package assistant_test

import (
	"errors"
	"testing"

	"github.com/averro/voiceline/internal/assistant"
	"github.com/averro/voiceline/internal/tools"
)

type fake struct{ name string }

func (f *fake) Name() string         { return f.name }
func (f *fake) Kind() string         { return "fake" }
func (f *fake) Instructions() string { return "be fake" }
func (f *fake) Greeting() string     { return "hi" }
func (f *fake) Tools() []tools.Tool  { return nil }

func init() {
	assistant.Register("fake", func(p assistant.Params) (assistant.Assistant, error) {
		return &fake{name: p.Name}, nil
	})
}

func TestNewBuildsRegisteredKind(t *testing.T) {
	t.Parallel()

	a, err := assistant.New("fake", assistant.Params{Name: "f1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Name() != "f1" || a.Kind() != "fake" {
		t.Errorf("built %q/%q", a.Name(), a.Kind())
	}
}

func TestNewUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := assistant.New("no-such-kind", assistant.Params{})
	if !errors.Is(err, assistant.ErrKindNotRegistered) {
		t.Fatalf("err = %v", err)
	}
}

func TestKindsIncludesRegistered(t *testing.T) {
	t.Parallel()

	found := false
	for _, k := range assistant.Kinds() {
		if k == "fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("Kinds() = %v, missing fake", assistant.Kinds())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	assistant.Register("fake", func(assistant.Params) (assistant.Assistant, error) { return nil, nil })
}
