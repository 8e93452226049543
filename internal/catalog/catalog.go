// Package catalog defines the router and capability-based handle surface
// the dispatcher uses to reach a backend without knowing which concrete
// external system owns a given name. Dynamic dispatch happens through the
// Handle interface rather than a type switch or registry lookup inside
// the hot path, matching a single polymorphic call site per backend
// operation.
package catalog

import (
	"context"

	"github.com/metabridge/catalogd/internal/ident"
)

// Scope names the metadata kind a capability applies to. The dispatcher
// only ever queries ScopeSchema today; the type exists so a future
// kind (table, topic, fileset) slots in without an interface break.
type Scope string

// ScopeSchema is the only scope the dispatcher core queries.
const ScopeSchema Scope = "SCHEMA"

// Capability reports how a catalog's backend relates to the entity store
// for a given scope.
type Capability struct {
	// Managed means the backend is itself authoritative for identity and
	// audit; the dispatcher must never write a mirror entity for this
	// scope.
	Managed bool
}

// Schema is the backend's view of a schema: structural data plus whatever
// properties it stores, which may include the identity tag.
type Schema struct {
	Name       ident.Name
	Comment    string
	Properties map[string]string
}

// ChangeKind enumerates the operations alterSchema accepts.
type ChangeKind int

const (
	SetProperty ChangeKind = iota
	RemoveProperty
	SetComment
	// Rename is accepted as a ChangeKind so validation can detect and
	// reject it explicitly (IllegalArgument) rather than silently
	// misinterpreting a rename as a property change.
	Rename
)

// Change is one requested mutation within an alterSchema call.
type Change struct {
	Kind  ChangeKind
	Key   string
	Value string
}

// SchemaOps is the schema-scoped operation surface every backend
// implements identically, regardless of what external system it fronts.
type SchemaOps interface {
	ListSchemas(ctx context.Context, namespace ident.Name) ([]ident.Name, error)
	CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (Schema, error)
	LoadSchema(ctx context.Context, name ident.Name) (Schema, error)
	AlterSchema(ctx context.Context, name ident.Name, changes []Change) (Schema, error)
	DropSchema(ctx context.Context, name ident.Name, cascade bool) (bool, error)
}

// PropertiesMeta validates a property map against a backend's declared
// schema-properties metadata.
type PropertiesMeta interface {
	Validate(properties map[string]string) error
}

// Handle is what the router hands back for a resolved catalog identifier.
// The dispatcher never holds a concrete backend type, only this
// interface, so the same dispatcher core runs unmodified against any
// number of backend kinds.
type Handle interface {
	// WithSchemaOps runs f against the backend's schema-ops surface.
	WithSchemaOps(f func(SchemaOps) error) error
	// WithPropertiesMeta runs f against the property-metadata surface.
	WithPropertiesMeta(f func(PropertiesMeta) error) error
	// CapabilityScope reports capability flags for the given scope.
	CapabilityScope(scope Scope) Capability
	// HiddenPropertyNames returns the subset of props this backend
	// declares confidential for presentation purposes. kind names the
	// entity kind ("SCHEMA") the properties belong to.
	HiddenPropertyNames(props map[string]string, kind string) map[string]struct{}
}

// Router resolves a name identifier to the catalog handle that owns it.
type Router interface {
	Resolve(ctx context.Context, name ident.Name) (Handle, error)
}

// SimpleHandle composes a SchemaOps backend, a PropertiesMeta validator,
// a fixed capability set and a hidden-property predicate into a Handle.
// Every concrete backend in this module is wired through one of these
// rather than hand-writing the same three pass-through methods per
// backend package.
type SimpleHandle struct {
	Ops    SchemaOps
	Meta   PropertiesMeta
	Cap    Capability
	Hidden func(props map[string]string, kind string) map[string]struct{}
}

func (h *SimpleHandle) WithSchemaOps(f func(SchemaOps) error) error {
	return f(h.Ops)
}

func (h *SimpleHandle) WithPropertiesMeta(f func(PropertiesMeta) error) error {
	return f(h.Meta)
}

func (h *SimpleHandle) CapabilityScope(scope Scope) Capability {
	return h.Cap
}

func (h *SimpleHandle) HiddenPropertyNames(props map[string]string, kind string) map[string]struct{} {
	if h.Hidden == nil {
		return nil
	}
	return h.Hidden(props, kind)
}
