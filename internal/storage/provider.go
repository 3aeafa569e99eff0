package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/phrazzld/filepipe/internal/domain"
)

// Provider stores and deletes files on one storage medium.
type Provider interface {
	// Kind returns the selector this provider answers to.
	Kind() domain.ProviderKind

	// Upload stores file and describes where it ended up.
	Upload(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileRecord, error)

	// Delete removes the file identified by a provider-specific reference.
	Delete(ctx context.Context, reference string) (bool, error)
}

// Registry resolves provider selectors to providers.
type Registry struct {
	providers map[domain.ProviderKind]Provider
	fallback  domain.ProviderKind
}

// NewRegistry creates a registry whose empty selector resolves to fallback.
// The fallback provider must be among providers.
func NewRegistry(fallback domain.ProviderKind, providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: make(map[domain.ProviderKind]Provider, len(providers)),
		fallback:  fallback,
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[p.Kind()] = p
	}
	if _, ok := r.providers[fallback]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", fallback)
	}
	return r, nil
}

// Default returns the kind used for empty selectors.
func (r *Registry) Default() domain.ProviderKind {
	return r.fallback
}

// Resolve parses a selector string and returns its kind. Kinds that are valid
// but not configured are rejected as well.
func (r *Registry) Resolve(selector string) (domain.ProviderKind, error) {
	kind, err := domain.ParseProviderKind(selector, r.fallback)
	if err != nil {
		return "", err
	}
	if _, ok := r.providers[kind]; !ok {
		return "", fmt.Errorf("%w: %q is not configured", domain.ErrUnknownProvider, kind)
	}
	return kind, nil
}

// Get returns the provider for kind.
func (r *Registry) Get(kind domain.ProviderKind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", domain.ErrUnknownProvider, kind)
	}
	return p, nil
}

// Kinds lists the configured provider kinds in sorted order.
func (r *Registry) Kinds() []domain.ProviderKind {
	kinds := make([]domain.ProviderKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
