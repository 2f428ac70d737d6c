// Package registry implements the Provider Registry (C1): a process-wide
// mapping from provider id to provider factory, populated at startup by
// declaration and safely shared read-mostly thereafter.
package registry

import (
	"fmt"
	"sync"

	"github.com/dispatchlab/llmengine/internal/apierr"
	"github.com/dispatchlab/llmengine/internal/catalog"
	"github.com/dispatchlab/llmengine/internal/provider"
)

// Factory constructs a Provider bound to its ProviderConfig (credential
// material: API key, endpoint, version, base URL).
type Factory func(cfg catalog.ProviderConfig) (provider.Provider, error)

// Registry is the process-wide provider-id -> factory map.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a factory to a provider id. Intended for startup-time
// declaration (each adapter package's init()); panics on a duplicate id
// since that indicates a programming error, not a runtime condition.
func (r *Registry) Register(providerID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[providerID]; exists {
		panic(fmt.Sprintf("registry: provider %q already registered", providerID))
	}
	r.factories[providerID] = f
}

// Build resolves providerID to a constructed Provider bound to cfg,
// failing with UnknownProviderError if the id was never registered.
func (r *Registry) Build(providerID string, cfg catalog.ProviderConfig) (provider.Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, &apierr.UnknownProviderError{ProviderID: providerID}
	}
	return f(cfg)
}

// Default is the process-wide registry instance that provider adapter
// packages register themselves into from init().
var Default = New()
