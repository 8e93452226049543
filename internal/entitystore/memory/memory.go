// Package memory implements entitystore.Store with an in-process map,
// generalized from the schema registry's per-context in-memory store:
// one map keyed by name, one secondary index keyed by id, both guarded by
// a single RWMutex.
package memory

import (
	"context"
	"sync"

	"github.com/metabridge/catalogd/internal/entitystore"
)

// Store is an in-memory entitystore.Store. The zero value is not usable;
// use New. Intended for tests, local development, and catalogs whose
// identity store does not need to survive a restart.
type Store struct {
	mu       sync.RWMutex
	byName   map[string]*entitystore.SchemaEntity
	byID     map[uint64]*entitystore.SchemaEntity
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byName: make(map[string]*entitystore.SchemaEntity),
		byID:   make(map[uint64]*entitystore.SchemaEntity),
	}
}

func (s *Store) Put(ctx context.Context, entity entitystore.SchemaEntity, overwrite bool) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[entity.ID]; ok && existing.Name != entity.Name {
		if !sameNamespace(existing.Namespace, entity.Namespace) {
			// Same id claimed from a different catalog namespace: a
			// genuine identity collision, not a rename. overwrite never
			// resolves this — the caller must surface
			// ErrMultipleCatalogsManageSchema instead.
			return entitystore.ErrAlreadyExists
		}
		if !overwrite {
			return entitystore.ErrAlreadyExists
		}
		// Same id, same catalog, different name: this is the
		// external-rename import path. Drop the stale name-keyed row
		// before installing the new one so byName never holds two
		// entries for the same id.
		delete(s.byName, existing.Name)
	}

	cp := entity.Clone()
	s.byName[entity.Name] = &cp
	s.byID[entity.ID] = &cp
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (*entitystore.SchemaEntity, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[name]
	if !ok {
		return nil, entitystore.ErrNotFound
	}
	cp := e.Clone()
	return &cp, nil
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*entitystore.SchemaEntity, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, entitystore.ErrNotFound
	}
	cp := e.Clone()
	return &cp, nil
}

func (s *Store) Update(ctx context.Context, id uint64, f entitystore.UpdateFunc) (*entitystore.SchemaEntity, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[id]
	if !ok {
		return nil, entitystore.ErrNotFound
	}
	updated := existing.Clone()
	if err := f(&updated); err != nil {
		return nil, err
	}
	updated.ID = id

	if updated.Name != existing.Name {
		delete(s.byName, existing.Name)
	}
	cp := updated.Clone()
	s.byName[updated.Name] = &cp
	s.byID[id] = &cp
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, name string, cascade bool) error {
	_ = ctx
	_ = cascade
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byName[name]
	if !ok {
		return entitystore.ErrNotFound
	}
	delete(s.byName, name)
	delete(s.byID, e.ID)
	return nil
}

func (s *Store) Close() error { return nil }

func sameNamespace(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
