// Package bbolt implements entitystore.Store atop an embedded go.etcd.io/bbolt
// database, following the bucket-per-entity-kind layout used elsewhere in
// the corpus for embedded key/value persistence: one bucket holding
// JSON-encoded name-keyed rows, one bucket holding the id-to-name secondary
// index (8-byte big-endian id to raw name bytes), both mutated inside a
// single bbolt transaction per call so Store and its index never drift
// apart.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/metabridge/catalogd/internal/entitystore"
)

var (
	bucketEntities = []byte("schema_entities")   // name -> json(record)
	bucketIndex    = []byte("schema_entities_id") // id (8-byte BE) -> name
)

// Store is a bbolt-backed entitystore.Store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path and ensures the
// buckets this store needs exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bbolt: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntities); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketIndex)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bbolt: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

type record struct {
	ID        uint64            `json:"id"`
	Name      string            `json:"name"`
	Namespace []string          `json:"namespace"`
	Audit     entitystore.Audit `json:"audit"`
}

func toRecord(e entitystore.SchemaEntity) record {
	return record{ID: e.ID, Name: e.Name, Namespace: e.Namespace, Audit: e.Audit}
}

func (r record) toEntity() *entitystore.SchemaEntity {
	return &entitystore.SchemaEntity{ID: r.ID, Name: r.Name, Namespace: r.Namespace, Audit: r.Audit}
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func (s *Store) Put(ctx context.Context, entity entitystore.SchemaEntity, overwrite bool) error {
	_ = ctx
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketIndex)
		entities := tx.Bucket(bucketEntities)

		if existingName := idx.Get(idKey(entity.ID)); existingName != nil && string(existingName) != entity.Name {
			if !overwrite {
				return entitystore.ErrAlreadyExists
			}
			if err := entities.Delete(existingName); err != nil {
				return err
			}
		}

		data, err := json.Marshal(toRecord(entity))
		if err != nil {
			return err
		}
		if err := entities.Put([]byte(entity.Name), data); err != nil {
			return err
		}
		return idx.Put(idKey(entity.ID), []byte(entity.Name))
	})
}

func (s *Store) Get(ctx context.Context, name string) (*entitystore.SchemaEntity, error) {
	_ = ctx
	var out *entitystore.SchemaEntity
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get([]byte(name))
		if data == nil {
			return entitystore.ErrNotFound
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		out = r.toEntity()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*entitystore.SchemaEntity, error) {
	_ = ctx
	var out *entitystore.SchemaEntity
	err := s.db.View(func(tx *bolt.Tx) error {
		name := tx.Bucket(bucketIndex).Get(idKey(id))
		if name == nil {
			return entitystore.ErrNotFound
		}
		data := tx.Bucket(bucketEntities).Get(name)
		if data == nil {
			return entitystore.ErrNotFound
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		out = r.toEntity()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id uint64, f entitystore.UpdateFunc) (*entitystore.SchemaEntity, error) {
	_ = ctx
	var out *entitystore.SchemaEntity
	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketIndex)
		entities := tx.Bucket(bucketEntities)

		name := idx.Get(idKey(id))
		if name == nil {
			return entitystore.ErrNotFound
		}
		data := entities.Get(name)
		if data == nil {
			return entitystore.ErrNotFound
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		updated := *r.toEntity()
		if err := f(&updated); err != nil {
			return err
		}
		updated.ID = id

		if updated.Name != string(name) {
			if err := entities.Delete(name); err != nil {
				return err
			}
		}
		newData, err := json.Marshal(toRecord(updated))
		if err != nil {
			return err
		}
		if err := entities.Put([]byte(updated.Name), newData); err != nil {
			return err
		}
		if err := idx.Put(idKey(id), []byte(updated.Name)); err != nil {
			return err
		}
		out = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string, cascade bool) error {
	_ = ctx
	_ = cascade
	return s.db.Update(func(tx *bolt.Tx) error {
		entities := tx.Bucket(bucketEntities)
		data := entities.Get([]byte(name))
		if data == nil {
			return entitystore.ErrNotFound
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if err := entities.Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketIndex).Delete(idKey(r.ID))
	})
}

func (s *Store) Close() error { return s.db.Close() }
