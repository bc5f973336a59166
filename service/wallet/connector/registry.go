package connector

import (
	"fmt"
	"sync"

	"github.com/goldium-labs/goldium/service/wallet"
)

// Factory builds a Provider from the injection environment, or returns a
// ProviderNotFound error when the vendor is not installed.
type Factory func(Globals) (Provider, error)

// Registry holds adapter factories in detection order.
type Registry struct {
	mu        sync.RWMutex
	order     []wallet.Kind
	factories map[wallet.Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[wallet.Kind]Factory)}
}

// DefaultRegistry knows every supported vendor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(wallet.Phantom, newPhantom)
	r.Register(wallet.Solflare, newSolflare)
	r.Register(wallet.Backpack, newBackpack)
	r.Register(wallet.Trust, newTrust)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind wallet.Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; !exists {
		r.order = append(r.order, kind)
	}
	r.factories[kind] = f
}

// Build constructs the adapter for kind.
func (r *Registry) Build(kind wallet.Kind, g Globals) (p Provider, err error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, wallet.Errorf(wallet.KindProviderNotFound, "build", "no adapter for %q", kind)
	}

	defer func() {
		if rec := recover(); rec != nil {
			p = nil
			err = wallet.NewError(wallet.KindProviderNotFound, "build", fmt.Errorf("%s adapter panicked: %v", kind, rec))
		}
	}()
	return f(g)
}

// Available lists the kinds whose adapter can be constructed from g.
func (r *Registry) Available(g Globals) []wallet.Kind {
	r.mu.RLock()
	order := append([]wallet.Kind(nil), r.order...)
	r.mu.RUnlock()

	var out []wallet.Kind
	for _, kind := range order {
		if _, err := r.Build(kind, g); err == nil {
			out = append(out, kind)
		}
	}
	return out
}
