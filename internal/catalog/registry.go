package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

// Registry is a Router backed by an in-memory map of catalog identifier
// to Handle, generalized from the schema registry's context-manager map
// (create/get/list/delete under a single RWMutex).
type Registry struct {
	mu        sync.RWMutex
	catalogs  map[string]Handle
}

// NewRegistry creates an empty catalog registry.
func NewRegistry() *Registry {
	return &Registry{catalogs: make(map[string]Handle)}
}

// Register binds a two-level catalog identifier (metalake.catalog) to a
// Handle. Re-registering the same identifier replaces the existing
// binding, which is how a reload picks up configuration changes.
func (r *Registry) Register(catalog ident.Name, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogs[catalog.String()] = h
}

// Unregister removes a catalog binding.
func (r *Registry) Unregister(catalog ident.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.catalogs, catalog.String())
}

// Resolve implements Router.
func (r *Registry) Resolve(ctx context.Context, name ident.Name) (Handle, error) {
	_ = ctx
	if name.Len() < 2 {
		return nil, catalogerr.IllegalArgument(fmt.Sprintf("identifier %q has fewer than two levels", name))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.catalogs[name.Catalog().String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalogerr.ErrNoSuchCatalog, name.Catalog())
	}
	return h, nil
}

// Catalogs returns the identifiers of every registered catalog, sorted
// only by map iteration order (callers needing a stable order should sort
// the result themselves).
func (r *Registry) Catalogs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.catalogs))
	for k := range r.catalogs {
		out = append(out, k)
	}
	return out
}
