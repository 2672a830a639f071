package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Unmesh28/voice-ad-sub002/pkg/audio"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/llm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/ttm"
	"github.com/Unmesh28/voice-ad-sub002/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
	tts   map[string]func(ProviderEntry) (tts.Provider, error)
	ttm   map[string]func(ProviderEntry) (ttm.Provider, error)
	audio map[string]func(ProviderEntry) (audio.Processor, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:   make(map[string]func(ProviderEntry) (tts.Provider, error)),
		ttm:   make(map[string]func(ProviderEntry) (ttm.Provider, error)),
		audio: make(map[string]func(ProviderEntry) (audio.Processor, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterTTM registers a text-to-music provider factory under name.
func (r *Registry) RegisterTTM(name string, factory func(ProviderEntry) (ttm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttm[name] = factory
}

// RegisterAudio registers an audio processor factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Processor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTM instantiates a text-to-music provider using the factory registered under entry.Name.
func (r *Registry) CreateTTM(entry ProviderEntry) (ttm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.ttm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ttm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAudio instantiates an audio processor using the factory registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Processor, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// DefaultRegistry returns a [Registry] pre-populated with the built-in
// provider implementations. The serve command uses this registry; tests can
// build their own with mock factories.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}
