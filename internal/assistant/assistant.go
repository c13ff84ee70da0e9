// Package assistant defines the Assistant abstraction: a named persona with
// a system prompt, an opening line, and a set of builtin tools.
//
// Concrete assistants live in subpackages and register themselves under a
// kind string so configuration can instantiate them by name.
package assistant

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/averro/voiceline/internal/tools"
)

// ErrKindNotRegistered is returned by New for an unknown assistant kind.
var ErrKindNotRegistered = errors.New("assistant: kind not registered")

// Assistant is a voice persona bound to its data file and tools.
//
// Greeting may be stateful: implementations are free to read their data file
// on every call so a returning user hears what they said last time.
type Assistant interface {
	// Name is the configured instance name, unique within one deployment.
	Name() string

	// Kind is the registered kind this assistant was built from.
	Kind() string

	// Instructions returns the full system prompt.
	Instructions() string

	// Greeting returns the opening line spoken when a session starts.
	Greeting() string

	// Tools returns the builtin tools this assistant exposes to the model.
	Tools() []tools.Tool
}

// Params carries the per-instance configuration handed to a Builder.
type Params struct {
	// Name is the instance name from configuration.
	Name string

	// DataFile is the path the assistant persists its records to.
	DataFile string

	// Greeting, when non-empty, replaces the kind's default opening line.
	Greeting string

	// ExtraInstructions is appended to the kind's base system prompt.
	ExtraInstructions string
}

// Builder constructs an Assistant from instance parameters.
type Builder func(p Params) (Assistant, error)

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

// Register makes a Builder available under kind. Registering the same kind
// twice panics; kinds are wired once at startup.
func Register(kind string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := builders[kind]; dup {
		panic(fmt.Sprintf("assistant: kind %q registered twice", kind))
	}
	builders[kind] = b
}

// New builds an assistant of the given kind.
func New(kind string, p Params) (Assistant, error) {
	mu.RLock()
	b, ok := builders[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrKindNotRegistered, kind, Kinds())
	}
	return b(p)
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
