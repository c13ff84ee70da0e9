package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/averro/voiceline/pkg/audio"
	"github.com/averro/voiceline/pkg/provider/denoise"
	"github.com/averro/voiceline/pkg/provider/llm"
	"github.com/averro/voiceline/pkg/provider/stt"
	"github.com/averro/voiceline/pkg/provider/tts"
	"github.com/averro/voiceline/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factoryMap holds named constructors for one provider kind. Safe for
// concurrent use.
type factoryMap[T any] struct {
	mu   sync.RWMutex
	kind string
	m    map[string]func(ProviderEntry) (T, error)
}

func newFactoryMap[T any](kind string) factoryMap[T] {
	return factoryMap[T]{kind: kind, m: make(map[string]func(ProviderEntry) (T, error))}
}

func (f *factoryMap[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = factory
}

func (f *factoryMap[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	factory, ok := f.m[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use. Registering a name twice
// overwrites the earlier registration.
type Registry struct {
	llm     factoryMap[llm.Provider]
	stt     factoryMap[stt.Provider]
	tts     factoryMap[tts.Provider]
	vad     factoryMap[vad.Engine]
	denoise factoryMap[denoise.Processor]
	audio   factoryMap[audio.Platform]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:     newFactoryMap[llm.Provider]("llm"),
		stt:     newFactoryMap[stt.Provider]("stt"),
		tts:     newFactoryMap[tts.Provider]("tts"),
		vad:     newFactoryMap[vad.Engine]("vad"),
		denoise: newFactoryMap[denoise.Processor]("denoise"),
		audio:   newFactoryMap[audio.Platform]("audio"),
	}
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.vad.register(name, factory)
}

// RegisterDenoise registers a denoise processor factory under name.
func (r *Registry) RegisterDenoise(name string, factory func(ProviderEntry) (denoise.Processor, error)) {
	r.denoise.register(name, factory)
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Platform, error)) {
	r.audio.register(name, factory)
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under
// entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}

// CreateVAD instantiates a VAD engine using the factory registered under
// entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return r.vad.create(entry)
}

// CreateDenoise instantiates a denoise processor using the factory registered
// under entry.Name.
func (r *Registry) CreateDenoise(entry ProviderEntry) (denoise.Processor, error) {
	return r.denoise.create(entry)
}

// CreateAudio instantiates an audio platform using the factory registered
// under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Platform, error) {
	return r.audio.create(entry)
}
