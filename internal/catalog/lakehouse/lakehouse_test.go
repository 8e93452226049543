package lakehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

func fixedClock() (func() string, func() time.Time) {
	return func() string { return "alice" }, func() time.Time { return time.Unix(0, 0).UTC() }
}

func TestCreateLoad(t *testing.T) {
	creator, now := fixedClock()
	b := New(creator, now)
	ctx := context.Background()
	name := ident.MustNew("lake", "mem", "s1")

	if _, err := b.CreateSchema(ctx, name, "c", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	loaded, err := b.LoadSchema(ctx, name)
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	if loaded.Comment != "c" || loaded.Properties["k"] != "v" {
		t.Fatalf("unexpected schema: %+v", loaded)
	}
}

func TestCreateDuplicate(t *testing.T) {
	creator, now := fixedClock()
	b := New(creator, now)
	ctx := context.Background()
	name := ident.MustNew("lake", "mem", "s1")
	if _, err := b.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if _, err := b.CreateSchema(ctx, name, "", nil); !errors.Is(err, catalogerr.ErrSchemaAlreadyExists) {
		t.Fatalf("expected ErrSchemaAlreadyExists, got %v", err)
	}
}

func TestAlterRejectsRename(t *testing.T) {
	creator, now := fixedClock()
	b := New(creator, now)
	ctx := context.Background()
	name := ident.MustNew("lake", "mem", "s1")
	if _, err := b.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	_, err := b.AlterSchema(ctx, name, []catalog.Change{{Kind: catalog.Rename, Value: "s2"}})
	if !errors.Is(err, catalogerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got %v", err)
	}
}

func TestDropNoSuchSchema(t *testing.T) {
	creator, now := fixedClock()
	b := New(creator, now)
	_, err := b.DropSchema(context.Background(), ident.MustNew("lake", "mem", "missing"), false)
	if !errors.Is(err, catalogerr.ErrNoSuchSchema) {
		t.Fatalf("expected ErrNoSuchSchema, got %v", err)
	}
}
