// Package propertymeta implements the schema-properties metadata surface
// that createSchema and alterSchema validate user-supplied properties
// against. Each backend declares its accepted property keys and value
// shapes as a JSON Schema document, validated with
// santhosh-tekuri/jsonschema/v5 the same way the corpus validates
// document-shaped input elsewhere.
package propertymeta

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
)

// Validator implements catalog.PropertiesMeta over a compiled JSON Schema.
// Property maps are validated as a flat object of string values, which is
// the shape every catalog.Schema.Properties map takes.
type Validator struct {
	schema *jsonschema.Schema
	// hidden names the keys this backend declares confidential; the
	// combined-view builder consults this through
	// catalog.Handle.HiddenPropertyNames, not through Validate.
	hidden map[string]struct{}
}

// Compile compiles a JSON Schema document (as raw JSON bytes) describing
// the accepted shape of a backend's schema-level properties. hiddenKeys
// lists property names this backend considers confidential.
func Compile(schemaDoc []byte, hiddenKeys ...string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	const resourceName = "properties.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("propertymeta: add resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("propertymeta: compile: %w", err)
	}

	hidden := make(map[string]struct{}, len(hiddenKeys))
	for _, k := range hiddenKeys {
		hidden[k] = struct{}{}
	}
	return &Validator{schema: compiled, hidden: hidden}, nil
}

// Unrestricted returns a Validator that accepts any property map,
// useful for backends that declare no property-metadata contract.
func Unrestricted(hiddenKeys ...string) *Validator {
	hidden := make(map[string]struct{}, len(hiddenKeys))
	for _, k := range hiddenKeys {
		hidden[k] = struct{}{}
	}
	return &Validator{hidden: hidden}
}

// Validate implements catalog.PropertiesMeta.
func (v *Validator) Validate(properties map[string]string) error {
	if v.schema == nil {
		return nil
	}
	// jsonschema validates against decoded JSON values; round-trip the
	// flat string map through the standard encoding so object/type
	// keywords in the schema see the same shape a JSON document would.
	asAny := make(map[string]interface{}, len(properties))
	for k, val := range properties {
		asAny[k] = val
	}
	data, err := json.Marshal(asAny)
	if err != nil {
		return catalogerr.Runtime("validateProperties", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return catalogerr.Runtime("validateProperties", err)
	}
	if err := v.schema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", catalogerr.ErrIllegalArgument, err)
	}
	return nil
}

// HiddenKeys returns the subset of props whose key this validator
// declares confidential. kind is accepted for call-site symmetry with
// catalog.Handle.HiddenPropertyNames; this implementation only tracks
// schema-level hidden keys.
func (v *Validator) HiddenKeys(props map[string]string, kind string) map[string]struct{} {
	out := make(map[string]struct{}, len(v.hidden))
	for k := range v.hidden {
		if _, present := props[k]; present {
			out[k] = struct{}{}
		}
	}
	return out
}

var _ catalog.PropertiesMeta = (*Validator)(nil)
