// Package registry provides a central registry of QC plugin factories.
// This enables runtime selection by name from configuration.
package registry

import (
	"sort"
	"sync"

	qcerrors "github.com/seisqc/seisqc/pkg/errors"
	"github.com/seisqc/seisqc/pkg/qc"
)

// Registry holds registered plugin factories keyed by name.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]qc.Factory
}

// Global default registry
var defaultRegistry = NewRegistry()

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]qc.Factory),
	}
}

// Register adds a plugin factory. A later registration under the same
// name replaces the earlier one.
func (r *Registry) Register(name string, factory qc.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins[name] = factory
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (qc.Factory, error) {
	r.mu.RLock()
	factory, ok := r.plugins[name]
	r.mu.RUnlock()

	if !ok {
		return nil, qcerrors.UnknownPlugin(name)
	}
	return factory, nil
}

// Resolve looks up every name in order. It fails on the first unknown name.
func (r *Registry) Resolve(names []string) ([]qc.Factory, error) {
	factories := make([]qc.Factory, 0, len(names))
	for _, name := range names {
		f, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		factories = append(factories, f)
	}
	return factories, nil
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package-level functions using default registry

// Default returns the global registry.
func Default() *Registry {
	return defaultRegistry
}

func Register(name string, factory qc.Factory) {
	defaultRegistry.Register(name, factory)
}

func Lookup(name string) (qc.Factory, error) {
	return defaultRegistry.Lookup(name)
}

func Resolve(names []string) ([]qc.Factory, error) {
	return defaultRegistry.Resolve(names)
}

func Names() []string {
	return defaultRegistry.Names()
}
