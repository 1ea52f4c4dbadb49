package adapter

import (
	"context"
	"fmt"

	"coveragescan/internal/domain"
)

// Adapter turns a vendor-specific origin into the common candidate shape.
// One implementation exists per vendor; orchestration never sees vendor
// payloads.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, source domain.Source) ([]domain.Candidate, error)
}

// Registry keeps a mapping from source kinds to their adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces an adapter implementation.
func (r *Registry) Register(a Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[a.Name()] = a
}

// Resolve returns an adapter by source kind or an error if it is absent.
func (r *Registry) Resolve(kind string) (Adapter, error) {
	if a, ok := r.adapters[kind]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("no adapter registered for source kind %s", kind)
}
