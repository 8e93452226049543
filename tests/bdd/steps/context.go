//go:build bdd

// Package steps provides godog step definitions that drive the dispatcher
// core directly in-process, the way its own package tests do, rather than
// over HTTP: this module exposes no REST or CLI façade for the five
// operations, so there is nothing for a request-driven BDD harness to hit.
package steps

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/combinedview"
	"github.com/metabridge/catalogd/internal/dispatcher"
	"github.com/metabridge/catalogd/internal/entitystore"
	"github.com/metabridge/catalogd/internal/entitystore/memory"
	"github.com/metabridge/catalogd/internal/ident"
	"github.com/metabridge/catalogd/internal/identitytag"
	"github.com/metabridge/catalogd/internal/idgen"
	"github.com/metabridge/catalogd/internal/lock"
)

// fakeOps is an in-memory catalog.SchemaOps double keyed by leaf name,
// grounded on the dispatcher package's own fakeOps test double. Scenarios
// reach into its schemas map directly to simulate state the dispatcher
// never produced itself: an external rename, or a planted identity-tag
// collision.
type fakeOps struct {
	schemas map[string]catalog.Schema
}

func newFakeOps() *fakeOps { return &fakeOps{schemas: map[string]catalog.Schema{}} }

func (f *fakeOps) ListSchemas(ctx context.Context, namespace ident.Name) ([]ident.Name, error) {
	var out []ident.Name
	for _, s := range f.schemas {
		out = append(out, s.Name)
	}
	return out, nil
}

func (f *fakeOps) CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (catalog.Schema, error) {
	if _, ok := f.schemas[name.Leaf()]; ok {
		return catalog.Schema{}, catalogerr.ErrSchemaAlreadyExists
	}
	s := catalog.Schema{Name: name, Comment: comment, Properties: properties}
	f.schemas[name.Leaf()] = s
	return s, nil
}

func (f *fakeOps) LoadSchema(ctx context.Context, name ident.Name) (catalog.Schema, error) {
	s, ok := f.schemas[name.Leaf()]
	if !ok {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	return s, nil
}

func (f *fakeOps) AlterSchema(ctx context.Context, name ident.Name, changes []catalog.Change) (catalog.Schema, error) {
	s, ok := f.schemas[name.Leaf()]
	if !ok {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	props := make(map[string]string, len(s.Properties))
	for k, v := range s.Properties {
		props[k] = v
	}
	for _, c := range changes {
		switch c.Kind {
		case catalog.SetProperty:
			props[c.Key] = c.Value
		case catalog.RemoveProperty:
			delete(props, c.Key)
		case catalog.SetComment:
			s.Comment = c.Value
		}
	}
	s.Properties = props
	f.schemas[name.Leaf()] = s
	return s, nil
}

func (f *fakeOps) DropSchema(ctx context.Context, name ident.Name, cascade bool) (bool, error) {
	if _, ok := f.schemas[name.Leaf()]; !ok {
		return false, catalogerr.ErrNoSuchSchema
	}
	delete(f.schemas, name.Leaf())
	return true, nil
}

// rename simulates a rename performed by the external system the backend
// fronts: the object keyed under oldLeaf becomes reachable under newLeaf,
// carrying its properties — and therefore its identity tag, if any —
// across unchanged.
func (f *fakeOps) rename(oldLeaf, newLeaf string, newName ident.Name) {
	s := f.schemas[oldLeaf]
	delete(f.schemas, oldLeaf)
	s.Name = newName
	f.schemas[newLeaf] = s
}

type fakeMeta struct{}

func (fakeMeta) Validate(map[string]string) error { return nil }

// newHandle composes a fakeOps backend into a catalog.Handle, always
// hiding the identity-tag property from presentation so visible-property
// assertions read the same way a real backend's declared hidden keys
// would make them read.
func newHandle(ops *fakeOps, managed bool) catalog.Handle {
	return &catalog.SimpleHandle{
		Ops:  ops,
		Meta: fakeMeta{},
		Cap:  catalog.Capability{Managed: managed},
		Hidden: func(props map[string]string, kind string) map[string]struct{} {
			hidden := map[string]struct{}{}
			if _, ok := props[identitytag.PropertyKey]; ok {
				hidden[identitytag.PropertyKey] = struct{}{}
			}
			return hidden
		},
	}
}

// countingStore wraps an entitystore.Store and counts every call, so
// steps can assert a managed catalog's operations never consulted the
// store at all.
type countingStore struct {
	inner entitystore.Store
	calls atomic.Int64
}

func newCountingStore(inner entitystore.Store) *countingStore {
	return &countingStore{inner: inner}
}

func (c *countingStore) callCount() int64 { return c.calls.Load() }

func (c *countingStore) Put(ctx context.Context, entity entitystore.SchemaEntity, overwrite bool) error {
	c.calls.Add(1)
	return c.inner.Put(ctx, entity, overwrite)
}

func (c *countingStore) Get(ctx context.Context, name string) (*entitystore.SchemaEntity, error) {
	c.calls.Add(1)
	return c.inner.Get(ctx, name)
}

func (c *countingStore) GetByID(ctx context.Context, id uint64) (*entitystore.SchemaEntity, error) {
	c.calls.Add(1)
	return c.inner.GetByID(ctx, id)
}

func (c *countingStore) Update(ctx context.Context, id uint64, f entitystore.UpdateFunc) (*entitystore.SchemaEntity, error) {
	c.calls.Add(1)
	return c.inner.Update(ctx, id, f)
}

func (c *countingStore) Delete(ctx context.Context, name string, cascade bool) error {
	c.calls.Add(1)
	return c.inner.Delete(ctx, name, cascade)
}

func (c *countingStore) Close() error { return c.inner.Close() }

var _ entitystore.Store = (*countingStore)(nil)

// TestContext holds the dispatcher and its wiring, plus the outcome of the
// most recent operation, shared across the steps of a single scenario.
type TestContext struct {
	registry   *catalog.Registry
	store      *countingStore
	ids        *idgen.Generator
	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher

	backends  map[string]*fakeOps
	entityIDs map[string]uint64

	lastCS         combinedview.CombinedSchema
	lastNames      []ident.Name
	lastOK         bool
	lastErr        error
	concurrentErrs []error
}

// NewTestContext builds a fresh context ready for Reset-less first use.
func NewTestContext() *TestContext {
	tc := &TestContext{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	tc.Reset()
	return tc
}

// Reset rebuilds every piece of scenario state, called before each
// scenario so none of them can leak into the next.
func (tc *TestContext) Reset() {
	tc.registry = catalog.NewRegistry()
	tc.store = newCountingStore(memory.New())
	tc.ids = idgen.New(0)
	tc.backends = map[string]*fakeOps{}
	tc.entityIDs = map[string]uint64{}
	tc.rebuildDispatcher()
	tc.lastCS = combinedview.CombinedSchema{}
	tc.lastNames = nil
	tc.lastOK = false
	tc.lastErr = nil
	tc.concurrentErrs = nil
}

func (tc *TestContext) rebuildDispatcher() {
	tc.dispatcher = dispatcher.New(tc.registry, tc.store, lock.New(), tc.ids, tc.logger, nil)
}

func (tc *TestContext) registerCatalog(prefix string, managed bool) (*fakeOps, error) {
	name, err := ident.Parse(prefix)
	if err != nil {
		return nil, err
	}
	ops := newFakeOps()
	tc.registry.Register(name, newHandle(ops, managed))
	tc.backends[prefix] = ops
	return ops, nil
}

func (tc *TestContext) backendFor(fullName ident.Name) (*fakeOps, bool) {
	ops, ok := tc.backends[fullName.Catalog().String()]
	return ops, ok
}

func (tc *TestContext) rememberEntity(name string, cs combinedview.CombinedSchema) {
	if cs.Entity != nil {
		tc.entityIDs[name] = cs.Entity.ID
	}
}
