// Package source defines the uniform contract the orchestrator uses to talk
// to data providers, and the registry that maps source ids to adapters.
package source

import (
	"context"
	"sort"
	"time"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

//go:generate mockgen -destination=../querier/mock_adapter_test.go -package=querier_test metaquery/internal/source Adapter

// Adapter is the per-provider fetch capability. FetchBatch receives every
// descriptor destined for the provider in one call; how the provider
// parallelizes or splits the work internally is its own business.
type Adapter interface {
	// FetchBatch fetches all descriptors for the inclusive date range and
	// returns a frame with one column per descriptor.
	FetchBatch(ctx context.Context, descs []catalog.Descriptor, start, end time.Time) (*Frame, error)

	// Metadata returns provider attributes for a single descriptor.
	Metadata(ctx context.Context, desc catalog.Descriptor) (map[string]string, error)
}

// Registry maps source ids to adapters. It is assembled once at startup and
// read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a source id, replacing any previous binding.
func (r *Registry) Register(name string, a Adapter) {
	r.adapters[name] = a
}

// Has reports whether a source id is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.adapters[name]
	return ok
}

// Get returns the adapter for a source id.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, &UnknownSourceError{Source: name, Known: r.Names()}
	}
	return a, nil
}

// Names lists the registered source ids, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NewPoint is a small helper for adapters building frame columns.
func NewPoint(date time.Time, value float64) timeseries.Point {
	return timeseries.Point{Date: timeseries.Normalize(date), Value: value}
}
