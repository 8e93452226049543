package combinedview

import (
	"testing"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/entitystore"
	"github.com/metabridge/catalogd/internal/identitytag"
)

func TestVisiblePropertiesStripsHidden(t *testing.T) {
	backend := catalog.Schema{Properties: map[string]string{"k": "v", "secret": "s"}}
	c := Build(backend, nil, map[string]struct{}{"secret": {}}, true)
	vis := c.VisibleProperties()
	if _, present := vis["secret"]; present {
		t.Fatal("secret should be hidden")
	}
	if vis["k"] != "v" {
		t.Fatal("non-hidden keys should survive")
	}
	if backend.Properties["secret"] != "s" {
		t.Fatal("VisibleProperties must not mutate the raw backend properties")
	}
}

func TestVisiblePropertiesNoHidden(t *testing.T) {
	backend := catalog.Schema{Properties: map[string]string{"k": "v"}}
	c := Build(backend, nil, nil, true)
	if len(c.VisibleProperties()) != 1 {
		t.Fatal("expected unchanged properties when nothing is hidden")
	}
}

func TestVisiblePropertiesAlwaysStripsIdentityTag(t *testing.T) {
	backend := catalog.Schema{Properties: identitytag.InjectInto(map[string]string{"k": "v"}, 42)}
	// No HiddenKeys at all: a backend that forgot to declare the tag
	// hidden must still never surface it.
	c := Build(backend, nil, nil, true)
	vis := c.VisibleProperties()
	if _, present := vis[identitytag.PropertyKey]; present {
		t.Fatal("identity tag must never appear in visible properties")
	}
	if vis["k"] != "v" {
		t.Fatal("non-tag keys should survive")
	}
}

func TestBuildCarriesEntity(t *testing.T) {
	e := &entitystore.SchemaEntity{ID: 42}
	c := Build(catalog.Schema{}, e, nil, true)
	if c.Entity == nil || c.Entity.ID != 42 {
		t.Fatal("expected entity to be carried through")
	}
}
