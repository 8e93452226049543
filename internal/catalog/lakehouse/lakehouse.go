// Package lakehouse implements a catalog.SchemaOps backend modeling a
// table-format lakehouse catalog (in the spirit of Iceberg/Delta
// metastores): the catalog owns identity and audit itself, so it is
// managed, and schema definitions are persisted as Avro-encoded blobs via
// hamba/avro/v2 the way a columnar table-format catalog would serialize
// its schema metadata for storage.
package lakehouse

import (
	"context"
	"sync"
	"time"

	"github.com/hamba/avro/v2"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

// record is the on-disk (or, here, in-memory blob) representation of a
// stored schema, encoded with recordSchema.
type record struct {
	Name       string            `avro:"name"`
	Comment    string            `avro:"comment"`
	Properties map[string]string `avro:"properties"`
	Creator    string            `avro:"creator"`
	CreateTime int64             `avro:"create_time"`
}

var recordSchema = avro.MustParse(`{
	"type": "record",
	"name": "LakehouseSchema",
	"fields": [
		{"name": "name", "type": "string"},
		{"name": "comment", "type": "string"},
		{"name": "properties", "type": {"type": "map", "values": "string"}},
		{"name": "creator", "type": "string"},
		{"name": "create_time", "type": "long"}
	]
}`)

// Backend implements catalog.SchemaOps with Avro-encoded blobs held in
// memory, keyed by schema leaf name. A production deployment would back
// this with the lakehouse's own metastore client; the encode/decode
// boundary is what this module exercises.
type Backend struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	creator func() string
	now     func() time.Time
}

// New creates an empty lakehouse backend. creator supplies the principal
// attributed to newly created schemas; now supplies the creation
// timestamp. Both are injected so tests do not depend on wall-clock time
// or ambient context.
func New(creator func() string, now func() time.Time) *Backend {
	return &Backend{blobs: make(map[string][]byte), creator: creator, now: now}
}

func (b *Backend) encode(r record) ([]byte, error) {
	return avro.Marshal(recordSchema, r)
}

func (b *Backend) decode(data []byte) (record, error) {
	var r record
	err := avro.Unmarshal(recordSchema, data, &r)
	return r, err
}

func (b *Backend) ListSchemas(ctx context.Context, namespace ident.Name) ([]ident.Name, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ident.Name, 0, len(b.blobs))
	for name := range b.blobs {
		out = append(out, namespace.Child(name))
	}
	return out, nil
}

func (b *Backend) CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (catalog.Schema, error) {
	leaf := name.Leaf()
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.blobs[leaf]; exists {
		return catalog.Schema{}, catalogerr.ErrSchemaAlreadyExists
	}

	r := record{
		Name:       leaf,
		Comment:    comment,
		Properties: properties,
		Creator:    b.creator(),
		CreateTime: b.now().UnixNano(),
	}
	data, err := b.encode(r)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	b.blobs[leaf] = data

	return catalog.Schema{Name: name, Comment: comment, Properties: properties}, nil
}

func (b *Backend) LoadSchema(ctx context.Context, name ident.Name) (catalog.Schema, error) {
	b.mu.RLock()
	data, ok := b.blobs[name.Leaf()]
	b.mu.RUnlock()
	if !ok {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	r, err := b.decode(data)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("loadSchema", err)
	}
	return catalog.Schema{Name: name, Comment: r.Comment, Properties: r.Properties}, nil
}

func (b *Backend) AlterSchema(ctx context.Context, name ident.Name, changes []catalog.Change) (catalog.Schema, error) {
	leaf := name.Leaf()
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.blobs[leaf]
	if !ok {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	r, err := b.decode(data)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("alterSchema", err)
	}

	props := make(map[string]string, len(r.Properties))
	for k, v := range r.Properties {
		props[k] = v
	}
	for _, c := range changes {
		switch c.Kind {
		case catalog.SetProperty:
			props[c.Key] = c.Value
		case catalog.RemoveProperty:
			delete(props, c.Key)
		case catalog.SetComment:
			r.Comment = c.Value
		case catalog.Rename:
			return catalog.Schema{}, catalogerr.IllegalArgument("rename is not supported by alterSchema")
		}
	}
	r.Properties = props

	newData, err := b.encode(r)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("alterSchema", err)
	}
	b.blobs[leaf] = newData

	return catalog.Schema{Name: name, Comment: r.Comment, Properties: props}, nil
}

func (b *Backend) DropSchema(ctx context.Context, name ident.Name, cascade bool) (bool, error) {
	_ = cascade
	leaf := name.Leaf()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[leaf]; !ok {
		return false, catalogerr.ErrNoSuchSchema
	}
	delete(b.blobs, leaf)
	return true, nil
}
