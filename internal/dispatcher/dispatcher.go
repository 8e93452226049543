// Package dispatcher implements the five schema-scoped operations that
// route a mutation to its owning catalog backend, reconcile the result
// with the internal entity store, and serialize concurrent access through
// the hierarchical lock. It is the coordination core of the catalog
// service: everything upstream (REST/CLI handlers) is thin glue around
// these five calls.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/combinedview"
	"github.com/metabridge/catalogd/internal/entitystore"
	"github.com/metabridge/catalogd/internal/ident"
	"github.com/metabridge/catalogd/internal/identitytag"
	"github.com/metabridge/catalogd/internal/idgen"
	"github.com/metabridge/catalogd/internal/lock"
	"github.com/metabridge/catalogd/internal/principal"
)

// Metrics is the subset of observability hooks the dispatcher calls on
// every operation. Implemented by internal/metrics.Metrics; declared here
// as a narrow interface so dispatcher tests can supply a no-op stub
// without pulling in Prometheus.
type Metrics interface {
	ObserveOperation(op string, outcome string, duration time.Duration)
	ObserveLockWait(path string, mode string, duration time.Duration)
	IncStoreDegraded(op string)
}

// Dispatcher wires the router, entity store, lock manager and id
// generator into the five operations described by the external operation
// surface.
type Dispatcher struct {
	router  catalog.Router
	store   entitystore.Store
	locks   *lock.Manager
	idGen   *idgen.Generator
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// New constructs a Dispatcher whose clock is time.Now. A nil logger falls
// back to slog.Default().
func New(router catalog.Router, store entitystore.Store, locks *lock.Manager, idGen *idgen.Generator, logger *slog.Logger, metrics Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		router:  router,
		store:   store,
		locks:   locks,
		idGen:   idGen,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// logWarn and logError emit the stable correlation shape every dispatcher
// log line carries: {op, ident, phase, cause}.
func (d *Dispatcher) logWarn(op string, name fmt.Stringer, phase string, cause error) {
	d.logger.Warn("catalogd: dispatcher degraded path",
		"op", op, "ident", name.String(), "phase", phase, "cause", errString(cause))
}

func (d *Dispatcher) logError(op string, name fmt.Stringer, phase string, cause error) {
	d.logger.Error("catalogd: dispatcher failure",
		"op", op, "ident", name.String(), "phase", phase, "cause", errString(cause))
}

func equalLevels(a, b []string) bool {
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

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (d *Dispatcher) observe(op string, start time.Time, err *error) {
	if d.metrics == nil {
		return
	}
	outcome := "success"
	if *err != nil {
		outcome = "error"
	}
	d.metrics.ObserveOperation(op, outcome, d.now().Sub(start))
}

func (d *Dispatcher) acquire(ctx context.Context, path []string, mode lock.Mode) *lock.Releaser {
	start := d.now()
	r := d.locks.Acquire(ctx, path, mode)
	if d.metrics != nil {
		modeName := "read"
		if mode == lock.Write {
			modeName = "write"
		}
		d.metrics.ObserveLockWait(strings.Join(path, "."), modeName, d.now().Sub(start))
	}
	return r
}

// ListSchemas returns the identifiers of every schema in namespace.
// Acquires READ on the catalog path; fails with ErrNoSuchCatalog if
// resolution fails.
func (d *Dispatcher) ListSchemas(ctx context.Context, namespace ident.Name) (names []ident.Name, err error) {
	defer d.observe("listSchemas", d.now(), &err)

	r := d.acquire(ctx, namespace.Levels(), lock.Read)
	defer r.Release()

	h, err := d.router.Resolve(ctx, namespace)
	if err != nil {
		return nil, err
	}

	err = h.WithSchemaOps(func(ops catalog.SchemaOps) error {
		var e error
		names, e = ops.ListSchemas(ctx, namespace)
		return e
	})
	return names, err
}

// CreateSchema creates a new schema under ident, injecting a freshly
// allocated identity tag into its properties before delegating to the
// backend. On a non-managed catalog, the entity store is updated after
// the backend succeeds; a store failure at this point is logged and
// swallowed so a successful backend write is never reported as a
// failure.
func (d *Dispatcher) CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (cs combinedview.CombinedSchema, err error) {
	defer d.observe("createSchema", d.now(), &err)

	h, err := d.router.Resolve(ctx, name)
	if err != nil {
		return combinedview.CombinedSchema{}, err
	}

	if err = h.WithPropertiesMeta(func(m catalog.PropertiesMeta) error {
		return m.Validate(properties)
	}); err != nil {
		return combinedview.CombinedSchema{}, err
	}

	uid := d.idGen.Next()
	propsWithTag := identitytag.InjectInto(properties, uid)

	catalogPath := name.Catalog()
	r := d.acquire(ctx, catalogPath.Levels(), lock.Write)
	defer r.Release()

	var backendSchema catalog.Schema
	err = h.WithSchemaOps(func(ops catalog.SchemaOps) error {
		var e error
		backendSchema, e = ops.CreateSchema(ctx, name, comment, propsWithTag)
		return e
	})
	if err != nil {
		return combinedview.CombinedSchema{}, err
	}

	hidden := h.HiddenPropertyNames(backendSchema.Properties, string(catalog.ScopeSchema))

	if h.CapabilityScope(catalog.ScopeSchema).Managed {
		return combinedview.Build(backendSchema, nil, hidden, false), nil
	}

	entity := entitystore.SchemaEntity{
		ID:        uid,
		Name:      name.Leaf(),
		Namespace: name.Namespace().Levels(),
		Audit: entitystore.Audit{
			Creator:    principal.FromContext(ctx),
			CreateTime: d.now().UTC(),
		},
	}
	if storeErr := d.store.Put(ctx, entity, true); storeErr != nil {
		d.logWarn("createSchema", name, "store-put", storeErr)
		if d.metrics != nil {
			d.metrics.IncStoreDegraded("createSchema")
		}
		return combinedview.Build(backendSchema, nil, hidden, false), nil
	}

	return combinedview.Build(backendSchema, &entity, hidden, false), nil
}

// LoadSchema loads a schema, importing it into the entity store on first
// sight if necessary. The view returned to the caller always reflects the
// state observed at the initial read; import only fixes up the store for
// subsequent calls.
func (d *Dispatcher) LoadSchema(ctx context.Context, name ident.Name) (cs combinedview.CombinedSchema, err error) {
	defer d.observe("loadSchema", d.now(), &err)

	r := d.acquire(ctx, name.Levels(), lock.Read)
	view, imported, err := d.internalLoad(ctx, name)
	r.Release()
	if err != nil {
		return combinedview.CombinedSchema{}, err
	}
	if imported {
		return view, nil
	}

	catalogPath := name.Catalog()
	wr := d.acquire(ctx, catalogPath.Levels(), lock.Write)
	defer wr.Release()

	if err := d.importSchema(ctx, name); err != nil {
		return combinedview.CombinedSchema{}, err
	}
	return view, nil
}

// internalLoad resolves the catalog, delegates to the backend, and
// figures out whether a matching store row already exists. It performs
// no writes.
func (d *Dispatcher) internalLoad(ctx context.Context, name ident.Name) (combinedview.CombinedSchema, bool, error) {
	h, err := d.router.Resolve(ctx, name)
	if err != nil {
		return combinedview.CombinedSchema{}, false, err
	}

	var backendSchema catalog.Schema
	err = h.WithSchemaOps(func(ops catalog.SchemaOps) error {
		var e error
		backendSchema, e = ops.LoadSchema(ctx, name)
		return e
	})
	if err != nil {
		return combinedview.CombinedSchema{}, false, err
	}

	hidden := h.HiddenPropertyNames(backendSchema.Properties, string(catalog.ScopeSchema))

	if h.CapabilityScope(catalog.ScopeSchema).Managed {
		return combinedview.Build(backendSchema, nil, hidden, true), true, nil
	}

	if tag, ok := identitytag.Extract(backendSchema.Properties); ok {
		entity, err := d.store.GetByID(ctx, tag)
		if errors.Is(err, entitystore.ErrNotFound) {
			return combinedview.Build(backendSchema, nil, hidden, false), false, nil
		}
		if err != nil {
			return combinedview.CombinedSchema{}, false, catalogerr.Runtime("loadSchema", err)
		}
		// The store row exists but was planted by a different catalog's
		// namespace: two backends independently claim the same identity
		// tag. This is the one case internalLoad itself must refuse
		// rather than silently hand back the other catalog's entity.
		if !equalLevels(entity.Namespace, name.Catalog().Levels()) {
			return combinedview.CombinedSchema{}, false,
				fmt.Errorf("%w: %s", catalogerr.ErrMultipleCatalogsManageSchema, name)
		}
		// The row carries this object's id but still sits under a
		// pre-rename name: the backend was renamed externally. Report it as
		// not imported so LoadSchema re-keys the row under the current
		// name; the returned view carries the row's id under that name.
		if entity.Name != name.Leaf() {
			renamed := entity.Clone()
			renamed.Name = name.Leaf()
			return combinedview.Build(backendSchema, &renamed, hidden, false), false, nil
		}
		return combinedview.Build(backendSchema, entity, hidden, true), true, nil
	}

	entity, err := d.store.Get(ctx, name.Leaf())
	if errors.Is(err, entitystore.ErrNotFound) {
		return combinedview.Build(backendSchema, nil, hidden, false), false, nil
	}
	if err != nil {
		return combinedview.CombinedSchema{}, false, catalogerr.Runtime("loadSchema", err)
	}
	return combinedview.Build(backendSchema, entity, hidden, true), true, nil
}

// importSchema (re-)establishes a store row matching what the backend
// currently holds. Called with the catalog path held WRITE.
func (d *Dispatcher) importSchema(ctx context.Context, name ident.Name) error {
	_, imported, err := d.internalLoad(ctx, name)
	if err != nil {
		return err
	}
	if imported {
		return nil
	}

	h, err := d.router.Resolve(ctx, name)
	if err != nil {
		return err
	}
	var backendSchema catalog.Schema
	err = h.WithSchemaOps(func(ops catalog.SchemaOps) error {
		var e error
		backendSchema, e = ops.LoadSchema(ctx, name)
		return e
	})
	if err != nil {
		return err
	}

	var uid uint64
	var audit entitystore.Audit
	if tag, ok := identitytag.Extract(backendSchema.Properties); ok {
		// Tag present but no row under this name: the backend was renamed
		// externally (the row still sits under the old name), or no row
		// holds this id yet. Preserve the id; the name we write under is
		// whatever the backend calls it now, and Put replaces any row left
		// under the old name.
		uid = tag
		d.logWarn("loadSchema", name, "import-external-rename", nil)
	} else {
		uid = d.idGen.Next()
	}
	audit = entitystore.Audit{
		Creator:    principal.FromContext(ctx),
		CreateTime: d.now().UTC(),
	}

	entity := entitystore.SchemaEntity{
		ID:        uid,
		Name:      name.Leaf(),
		Namespace: name.Namespace().Levels(),
		Audit:     audit,
	}
	if err := d.store.Put(ctx, entity, true); err != nil {
		if errors.Is(err, entitystore.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", catalogerr.ErrMultipleCatalogsManageSchema, name)
		}
		return catalogerr.Runtime("import", err)
	}
	return nil
}

// AlterSchema applies property/comment changes to an existing schema.
// Rename changes are rejected before any backend or store call. Only the
// schema path is locked (WRITE); the parent catalog path is not re-locked,
// even when a property change might affect the catalog as a whole.
func (d *Dispatcher) AlterSchema(ctx context.Context, name ident.Name, changes []catalog.Change) (cs combinedview.CombinedSchema, err error) {
	defer d.observe("alterSchema", d.now(), &err)

	for _, c := range changes {
		if c.Kind == catalog.Rename {
			return combinedview.CombinedSchema{}, catalogerr.IllegalArgument("alterSchema does not support rename")
		}
	}

	r := d.acquire(ctx, name.Levels(), lock.Write)
	defer r.Release()

	h, err := d.router.Resolve(ctx, name)
	if err != nil {
		return combinedview.CombinedSchema{}, err
	}

	if err = h.WithPropertiesMeta(func(m catalog.PropertiesMeta) error {
		for _, c := range changes {
			if c.Kind == catalog.SetProperty {
				if verr := m.Validate(map[string]string{c.Key: c.Value}); verr != nil {
					return verr
				}
			}
		}
		return nil
	}); err != nil {
		return combinedview.CombinedSchema{}, err
	}

	var backendSchema catalog.Schema
	err = h.WithSchemaOps(func(ops catalog.SchemaOps) error {
		var e error
		backendSchema, e = ops.AlterSchema(ctx, name, changes)
		return e
	})
	if err != nil {
		return combinedview.CombinedSchema{}, err
	}

	hidden := h.HiddenPropertyNames(backendSchema.Properties, string(catalog.ScopeSchema))

	if h.CapabilityScope(catalog.ScopeSchema).Managed {
		return combinedview.Build(backendSchema, nil, hidden, true), nil
	}

	var id uint64
	if tag, ok := identitytag.Extract(backendSchema.Properties); ok {
		id = tag
	} else {
		entity, err := d.store.Get(ctx, name.Leaf())
		if errors.Is(err, entitystore.ErrNotFound) {
			return combinedview.Build(backendSchema, nil, hidden, true), nil
		}
		if err != nil {
			return combinedview.CombinedSchema{}, catalogerr.Runtime("alterSchema", err)
		}
		id = entity.ID
	}

	updated, err := d.store.Update(ctx, id, func(e *entitystore.SchemaEntity) error {
		e.Audit.LastModifier = principal.FromContext(ctx)
		e.Audit.LastModifiedTime = d.now().UTC()
		return nil
	})
	if errors.Is(err, entitystore.ErrNotFound) {
		return combinedview.Build(backendSchema, nil, hidden, true), nil
	}
	if err != nil {
		return combinedview.CombinedSchema{}, catalogerr.Runtime("alterSchema", err)
	}

	return combinedview.Build(backendSchema, updated, hidden, true), nil
}

// DropSchema drops a schema from its backend and best-effort removes the
// matching store row. The store's outcome never affects the returned
// value: whatever the backend reports is what the caller sees.
func (d *Dispatcher) DropSchema(ctx context.Context, name ident.Name, cascade bool) (ok bool, err error) {
	defer d.observe("dropSchema", d.now(), &err)

	catalogPath := name.Catalog()
	r := d.acquire(ctx, catalogPath.Levels(), lock.Write)
	defer r.Release()

	h, err := d.router.Resolve(ctx, name)
	if err != nil {
		return false, err
	}

	var dropped bool
	err = h.WithSchemaOps(func(ops catalog.SchemaOps) error {
		var e error
		dropped, e = ops.DropSchema(ctx, name, cascade)
		return e
	})
	if err != nil {
		return false, err
	}

	if h.CapabilityScope(catalog.ScopeSchema).Managed {
		return dropped, nil
	}

	if storeErr := d.store.Delete(ctx, name.Leaf(), true); storeErr != nil {
		if errors.Is(storeErr, entitystore.ErrNotFound) {
			d.logWarn("dropSchema", name, "store-delete", storeErr)
		} else {
			d.logError("dropSchema", name, "store-delete", storeErr)
			return dropped, catalogerr.Runtime("dropSchema", storeErr)
		}
	}

	return dropped, nil
}
