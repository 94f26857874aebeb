package provider

import (
	"fmt"
	"sort"

	"github.com/de-tools/storage-guard/pkg/models/domain"
)

// Registry is the vendor lookup table, built once at start and shared by reference.
type Registry struct {
	providers map[domain.Provider]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[domain.Provider]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider cannot be nil")
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("provider name cannot be empty")
		}
		if _, exists := r.providers[name]; exists {
			return nil, fmt.Errorf("provider %q is already registered", name)
		}
		r.providers[name] = p
	}
	return r, nil
}

// Get returns ErrUnsupported for vendors without a registered provider.
func (r *Registry) Get(name domain.Provider) (Provider, error) {
	p, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
	return p, nil
}

func (r *Registry) List() []domain.Provider {
	names := make([]domain.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
