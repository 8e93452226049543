package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/entitystore/memory"
	"github.com/metabridge/catalogd/internal/ident"
	"github.com/metabridge/catalogd/internal/identitytag"
	"github.com/metabridge/catalogd/internal/idgen"
	"github.com/metabridge/catalogd/internal/lock"
)

// fakeOps is a minimal in-memory catalog.SchemaOps double keyed by leaf
// name, used so dispatcher tests exercise real lock/store/router wiring
// without standing up an actual external backend.
type fakeOps struct {
	schemas map[string]catalog.Schema
	// renamed maps a leaf name to another leaf: every LoadSchema call for
	// the first returns the schema stored under the second instead —
	// simulating an external rename the dispatcher never initiated.
	renamed map[string]string
}

func newFakeOps() *fakeOps {
	return &fakeOps{schemas: map[string]catalog.Schema{}, renamed: map[string]string{}}
}

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
	leaf := name.Leaf()
	if target, ok := f.renamed[leaf]; ok {
		leaf = target
	}
	s, ok := f.schemas[leaf]
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

type fakeMeta struct{}

func (fakeMeta) Validate(map[string]string) error { return nil }

func newHandle(ops *fakeOps, managed bool) catalog.Handle {
	return &catalog.SimpleHandle{Ops: ops, Meta: fakeMeta{}, Cap: catalog.Capability{Managed: managed}}
}

func newTestDispatcher(t *testing.T, reg *catalog.Registry) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, memory.New(), lock.New(), idgen.New(0), logger, nil)
}

func TestCreateSchemaUnmanagedWritesEntity(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)

	name := ident.MustNew("lake", "pg", "s1")
	cs, err := d.CreateSchema(context.Background(), name, "c", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if cs.Entity == nil {
		t.Fatal("expected entity on unmanaged catalog create")
	}
	if _, ok := identitytag.Extract(cs.Backend.Properties); !ok {
		t.Fatal("expected identity tag injected into backend properties")
	}
}

func TestCreateSchemaManagedSkipsEntity(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "iceberg"), newHandle(ops, true))
	d := newTestDispatcher(t, reg)

	name := ident.MustNew("lake", "iceberg", "s1")
	cs, err := d.CreateSchema(context.Background(), name, "", nil)
	if err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if cs.Entity != nil {
		t.Fatal("managed catalog must not produce a store entity")
	}
}

func TestCreateSchemaDuplicate(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)

	name := ident.MustNew("lake", "pg", "s1")
	if _, err := d.CreateSchema(context.Background(), name, "", nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := d.CreateSchema(context.Background(), name, "", nil); !errors.Is(err, catalogerr.ErrSchemaAlreadyExists) {
		t.Fatalf("expected ErrSchemaAlreadyExists, got %v", err)
	}
}

func TestLoadSchemaImportsOnFirstSight(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()
	name := ident.MustNew("lake", "pg", "s1")

	// Object exists on the backend but was never created through the
	// dispatcher (e.g. provisioned out of band), so it carries no tag.
	ops.schemas["s1"] = catalog.Schema{Name: name, Properties: map[string]string{}}

	cs, err := d.LoadSchema(ctx, name)
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	if cs.Imported {
		t.Fatal("the view returned on first sight should reflect pre-import state")
	}

	again, err := d.LoadSchema(ctx, name)
	if err != nil {
		t.Fatalf("second LoadSchema: %v", err)
	}
	if again.Entity == nil {
		t.Fatal("expected an entity to have been imported for the second load")
	}
}

func TestLoadSchemaExternalRenamePreservesID(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()

	origName := ident.MustNew("lake", "pg", "s1")
	cs, err := d.CreateSchema(ctx, origName, "", nil)
	if err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	id := cs.Entity.ID

	// Simulate an external rename: the backend object that answers to
	// "s1_new" is really the same object originally created as "s1",
	// still carrying its identity tag.
	ops.schemas["s1_new"] = ops.schemas["s1"]
	delete(ops.schemas, "s1")

	newName := ident.MustNew("lake", "pg", "s1_new")
	if _, err := d.LoadSchema(ctx, newName); err != nil {
		t.Fatalf("LoadSchema under new name: %v", err)
	}
	again, err := d.LoadSchema(ctx, newName)
	if err != nil {
		t.Fatalf("second LoadSchema: %v", err)
	}
	if again.Entity == nil || again.Entity.ID != id {
		t.Fatalf("expected id %d preserved across rename, got %+v", id, again.Entity)
	}
	if again.Entity.Name != "s1_new" {
		t.Fatalf("expected store row to follow the rename, got name %q", again.Entity.Name)
	}
}

func TestLoadSchemaMultipleCatalogsConflict(t *testing.T) {
	reg := catalog.NewRegistry()
	opsA := newFakeOps()
	opsB := newFakeOps()
	reg.Register(ident.MustNew("lake", "a"), newHandle(opsA, false))
	reg.Register(ident.MustNew("lake", "b"), newHandle(opsB, false))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()

	nameA := ident.MustNew("lake", "a", "s1")
	cs, err := d.CreateSchema(ctx, nameA, "", nil)
	if err != nil {
		t.Fatalf("CreateSchema A: %v", err)
	}
	tag, _ := identitytag.Extract(cs.Backend.Properties)

	// Catalog B independently has an object claiming the same identity tag
	// (e.g. the property leaked across a copy). Loading it must surface a
	// conflict rather than silently attaching catalog A's entity to a
	// catalog B schema.
	nameB := ident.MustNew("lake", "b", "s2")
	opsB.schemas["s2"] = catalog.Schema{
		Name:       nameB,
		Properties: identitytag.InjectInto(nil, tag),
	}

	_, err = d.LoadSchema(ctx, nameB)
	if !errors.Is(err, catalogerr.ErrMultipleCatalogsManageSchema) {
		t.Fatalf("expected ErrMultipleCatalogsManageSchema, got %v", err)
	}
}

func TestAlterSchemaRejectsRename(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()
	name := ident.MustNew("lake", "pg", "s1")
	if _, err := d.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	_, err := d.AlterSchema(ctx, name, []catalog.Change{{Kind: catalog.Rename, Value: "s2"}})
	if !errors.Is(err, catalogerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got %v", err)
	}
}

func TestAlterSchemaUpdatesAudit(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()
	name := ident.MustNew("lake", "pg", "s1")
	if _, err := d.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	cs, err := d.AlterSchema(ctx, name, []catalog.Change{{Kind: catalog.SetComment, Value: "updated"}})
	if err != nil {
		t.Fatalf("AlterSchema: %v", err)
	}
	if cs.Entity == nil || cs.Entity.Audit.LastModifier == "" {
		t.Fatalf("expected audit last-modifier populated, got %+v", cs.Entity)
	}
}

func TestDropSchemaSwallowsStoreNotFound(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "pg"), newHandle(ops, false))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()
	name := ident.MustNew("lake", "pg", "s1")

	// Backend has the object, but the store was never populated (no prior
	// load/create through the dispatcher) — Delete should not fail the call.
	ops.schemas["s1"] = catalog.Schema{Name: name}

	ok, err := d.DropSchema(ctx, name, false)
	if err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if !ok {
		t.Fatal("expected backend drop outcome true")
	}
}

func TestDropSchemaManagedSkipsStore(t *testing.T) {
	reg := catalog.NewRegistry()
	ops := newFakeOps()
	reg.Register(ident.MustNew("lake", "iceberg"), newHandle(ops, true))
	d := newTestDispatcher(t, reg)
	ctx := context.Background()
	name := ident.MustNew("lake", "iceberg", "s1")
	ops.schemas["s1"] = catalog.Schema{Name: name}

	ok, err := d.DropSchema(ctx, name, false)
	if err != nil {
		t.Fatalf("DropSchema: %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

func TestListSchemasNoSuchCatalog(t *testing.T) {
	reg := catalog.NewRegistry()
	d := newTestDispatcher(t, reg)
	_, err := d.ListSchemas(context.Background(), ident.MustNew("lake", "missing"))
	if !errors.Is(err, catalogerr.ErrNoSuchCatalog) {
		t.Fatalf("expected ErrNoSuchCatalog, got %v", err)
	}
}
