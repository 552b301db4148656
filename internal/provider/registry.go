// Package provider manages the lifecycle of in-process providers and their
// dispatch by name.
package provider

import (
	"fmt"
	"sync"

	sdk "github.com/statecraft-io/statecraft/pkg/provider"
	"github.com/statecraft-io/statecraft/providers/mem"
	"github.com/statecraft-io/statecraft/providers/null"
)

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]sdk.Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]sdk.Provider),
	}
}

// LoadProvider initializes and registers a built-in provider. Loading the
// same name twice is a no-op; the existing instance is kept so that
// providers with in-process state stay coherent across operations.
func (r *Registry) LoadProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p sdk.Provider
	switch name {
	case "null":
		p = null.New()
	case "mem":
		p = mem.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	return nil
}

// Register installs a provider instance under a name, replacing any
// existing one. Tests use this to install instrumented providers.
func (r *Registry) Register(name string, p sdk.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (sdk.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
