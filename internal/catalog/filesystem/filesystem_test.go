package filesystem

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

func openTemp(t *testing.T) *Backend {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestCreateLoad(t *testing.T) {
	b := openTemp(t)
	ctx := context.Background()
	name := ident.MustNew("lake", "fs", "s1")

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
	b := openTemp(t)
	ctx := context.Background()
	name := ident.MustNew("lake", "fs", "s1")
	if _, err := b.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if _, err := b.CreateSchema(ctx, name, "", nil); !errors.Is(err, catalogerr.ErrSchemaAlreadyExists) {
		t.Fatalf("expected ErrSchemaAlreadyExists, got %v", err)
	}
}

func TestDropNonEmptyWithoutCascade(t *testing.T) {
	b := openTemp(t)
	ctx := context.Background()
	name := ident.MustNew("lake", "fs", "s1")
	if _, err := b.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	dir := b.dirFor(name)
	if err := writeSidecar(dir, sidecar{}); err != nil {
		t.Fatalf("writeSidecar: %v", err)
	}
	// create a child entry to simulate a table directory
	childDir := dir + "/table1"
	if err := os.Mkdir(childDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := b.DropSchema(ctx, name, false); !errors.Is(err, catalogerr.ErrNonEmptySchema) {
		t.Fatalf("expected ErrNonEmptySchema, got %v", err)
	}
	if _, err := b.DropSchema(ctx, name, true); err != nil {
		t.Fatalf("cascade drop: %v", err)
	}
}

func TestAlterRejectsRename(t *testing.T) {
	b := openTemp(t)
	ctx := context.Background()
	name := ident.MustNew("lake", "fs", "s1")
	if _, err := b.CreateSchema(ctx, name, "", nil); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	_, err := b.AlterSchema(ctx, name, []catalog.Change{{Kind: catalog.Rename, Value: "s2"}})
	if !errors.Is(err, catalogerr.ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument, got %v", err)
	}
}
