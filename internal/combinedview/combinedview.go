// Package combinedview builds the per-request composite of a backend's
// schema data and the entity store's identity/audit row. Nothing here is
// persisted; a CombinedSchema exists only for the duration of a single
// dispatcher call.
package combinedview

import (
	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/entitystore"
	"github.com/metabridge/catalogd/internal/identitytag"
)

// CombinedSchema is the in-memory composite returned by every dispatcher
// operation. Backend carries structure and raw properties (including the
// identity tag, if any); Entity, when present, carries the store's
// authoritative identity and audit. HiddenKeys names the subset of
// Backend.Properties the owning backend declares confidential; it is
// tracked separately rather than removed from Properties so presentation
// masking stays a caller decision. Imported reports whether the store row
// already matched the backend state at read time. createSchema always
// reports false; loadSchema reports false when it found no matching row
// (none at all, or one still under a pre-rename name), and its view then
// reflects the state before import ran.
type CombinedSchema struct {
	Backend    catalog.Schema
	Entity     *entitystore.SchemaEntity
	HiddenKeys map[string]struct{}
	Imported   bool
}

// Build assembles a CombinedSchema. entity may be nil (managed catalogs,
// or a not-yet-imported backend object).
func Build(backend catalog.Schema, entity *entitystore.SchemaEntity, hidden map[string]struct{}, imported bool) CombinedSchema {
	return CombinedSchema{
		Backend:    backend,
		Entity:     entity,
		HiddenKeys: hidden,
		Imported:   imported,
	}
}

// VisibleProperties returns Backend.Properties with the hidden keys
// removed, for callers that want a presentation-ready map rather than the
// raw backend properties plus a hidden-key set. The identity tag is always
// stripped regardless of what the backend declares hidden: it is an
// internal reconciliation detail, never a property a backend owns.
func (c CombinedSchema) VisibleProperties() map[string]string {
	props := identitytag.Strip(c.Backend.Properties)
	if len(c.HiddenKeys) == 0 {
		return props
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if _, hidden := c.HiddenKeys[k]; hidden {
			continue
		}
		out[k] = v
	}
	return out
}
