package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/metabridge/catalogd/internal/entitystore"
)

// CachingStore decorates an entitystore.Store with a read-through cache
// keyed by name and by id. Any write invalidates both keys for the
// affected row; a cache that is never invalidated on write would let a
// rename or audit update serve a stale row to the next loadSchema.
type CachingStore struct {
	inner entitystore.Store
	cache *Cache[entitystore.SchemaEntity]
}

// NewCachingStore wraps inner with an LRU+TTL cache of the given
// capacity and ttl.
func NewCachingStore(inner entitystore.Store, capacity int, ttl time.Duration) *CachingStore {
	return &CachingStore{inner: inner, cache: New[entitystore.SchemaEntity](capacity, ttl)}
}

func nameKey(name string) string { return "name:" + name }
func idKey(id uint64) string     { return fmt.Sprintf("id:%d", id) }

func (s *CachingStore) invalidate(entity *entitystore.SchemaEntity) {
	if entity == nil {
		return
	}
	s.cache.Delete(nameKey(entity.Name))
	s.cache.Delete(idKey(entity.ID))
}

func (s *CachingStore) Put(ctx context.Context, entity entitystore.SchemaEntity, overwrite bool) error {
	// Look up the row currently holding this id so that a rename (same id,
	// new name) also drops the entry still cached under the old name.
	previous, lookupErr := s.inner.GetByID(ctx, entity.ID)
	if err := s.inner.Put(ctx, entity, overwrite); err != nil {
		return err
	}
	if lookupErr == nil {
		s.invalidate(previous)
	}
	s.invalidate(&entity)
	return nil
}

func (s *CachingStore) Get(ctx context.Context, name string) (*entitystore.SchemaEntity, error) {
	if e, ok := s.cache.Get(nameKey(name)); ok {
		return &e, nil
	}
	e, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(nameKey(name), *e)
	return e, nil
}

func (s *CachingStore) GetByID(ctx context.Context, id uint64) (*entitystore.SchemaEntity, error) {
	if e, ok := s.cache.Get(idKey(id)); ok {
		return &e, nil
	}
	e, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(idKey(id), *e)
	return e, nil
}

func (s *CachingStore) Update(ctx context.Context, id uint64, f entitystore.UpdateFunc) (*entitystore.SchemaEntity, error) {
	updated, err := s.inner.Update(ctx, id, f)
	if err != nil {
		return nil, err
	}
	s.invalidate(updated)
	return updated, nil
}

func (s *CachingStore) Delete(ctx context.Context, name string, cascade bool) error {
	// Look up before delete so the id-keyed cache entry, not just the
	// name-keyed one, gets invalidated.
	existing, lookupErr := s.inner.Get(ctx, name)
	if err := s.inner.Delete(ctx, name, cascade); err != nil {
		return err
	}
	if lookupErr == nil {
		s.invalidate(existing)
	} else {
		s.cache.Delete(nameKey(name))
	}
	return nil
}

func (s *CachingStore) Close() error {
	return s.inner.Close()
}

var _ entitystore.Store = (*CachingStore)(nil)
