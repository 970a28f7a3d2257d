package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry resolves a provider by name. The server picks one at startup
// from AI_PROVIDER.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Options carries the credentials for the built-in providers.
type Options struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	OllamaBaseURL string
	OllamaModel   string

	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string
}

// NewDefaultRegistry registers gemini, ollama and openrouter. An empty model
// passed to Get falls back to the configured one.
func NewDefaultRegistry(o Options) *Registry {
	reg := NewRegistry()

	reg.Register("gemini", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		p := NewGeminiProvider(o.GeminiAPIKey, pick(model, o.GeminiModel))
		p.BaseURL = o.GeminiBaseURL
		return p, nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOllamaProvider(o.OllamaBaseURL, pick(model, o.OllamaModel)), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOpenRouterProvider(o.OpenRouterBaseURL, o.OpenRouterAPIKey,
			pick(model, o.OpenRouterModel), o.OpenRouterSiteURL, o.OpenRouterAppName), nil
	})
	return reg
}

func pick(model, fallback string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return fallback
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
