// Package filesystem implements a catalog.SchemaOps backend fronting an
// HDFS-like filesystem catalog: each schema is a directory under a root
// path, with a sidecar `.properties` file (JSON) carrying comment and
// properties. An fsnotify watch on the root directory is what makes this
// backend interesting for the dispatcher's import protocol: external
// tooling can rename a schema directory on disk (bypassing catalogd
// entirely) and, because the identity tag lives inside the sidecar file
// rather than the directory name, the next loadSchema still recovers the
// original entity under its new name. This backend is NOT managed.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

const sidecarFile = ".properties"

type sidecar struct {
	Comment    string            `json:"comment"`
	Properties map[string]string `json:"properties"`
}

// Backend implements catalog.SchemaOps against a root directory.
type Backend struct {
	root    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	mu      sync.Mutex
}

// Open roots the backend at dir, creating it if absent, and starts an
// fsnotify watch so external renames are logged as they happen (the
// dispatcher still relies on the next loadSchema to reconcile the store;
// this watch exists for observability and is safe to ignore).
func Open(dir string, logger *slog.Logger) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: mkdir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filesystem: watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("filesystem: watch %s: %w", dir, err)
	}
	b := &Backend{root: dir, logger: logger, watcher: watcher}
	go b.watch()
	return b, nil
}

func (b *Backend) watch() {
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Rename) {
				b.logger.Warn("catalogd: external rename detected on filesystem backend",
					"path", event.Name)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Error("catalogd: filesystem watch error", "error", err)
		}
	}
}

// Close stops the watch goroutine.
func (b *Backend) Close() error {
	return b.watcher.Close()
}

func (b *Backend) dirFor(name ident.Name) string {
	return filepath.Join(b.root, name.Leaf())
}

func (b *Backend) ListSchemas(ctx context.Context, namespace ident.Name) ([]ident.Name, error) {
	_ = ctx
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, catalogerr.Runtime("listSchemas", err)
	}
	var out []ident.Name
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, namespace.Child(e.Name()))
		}
	}
	return out, nil
}

func (b *Backend) CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (catalog.Schema, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := b.dirFor(name)
	if _, err := os.Stat(dir); err == nil {
		return catalog.Schema{}, catalogerr.ErrSchemaAlreadyExists
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	if err := writeSidecar(dir, sidecar{Comment: comment, Properties: properties}); err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	return catalog.Schema{Name: name, Comment: comment, Properties: properties}, nil
}

func (b *Backend) LoadSchema(ctx context.Context, name ident.Name) (catalog.Schema, error) {
	_ = ctx
	dir := b.dirFor(name)
	sc, err := readSidecar(dir)
	if os.IsNotExist(err) {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("loadSchema", err)
	}
	return catalog.Schema{Name: name, Comment: sc.Comment, Properties: sc.Properties}, nil
}

func (b *Backend) AlterSchema(ctx context.Context, name ident.Name, changes []catalog.Change) (catalog.Schema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.LoadSchema(ctx, name)
	if err != nil {
		return catalog.Schema{}, err
	}
	props := make(map[string]string, len(current.Properties))
	for k, v := range current.Properties {
		props[k] = v
	}
	comment := current.Comment
	for _, c := range changes {
		switch c.Kind {
		case catalog.SetProperty:
			props[c.Key] = c.Value
		case catalog.RemoveProperty:
			delete(props, c.Key)
		case catalog.SetComment:
			comment = c.Value
		case catalog.Rename:
			return catalog.Schema{}, catalogerr.IllegalArgument("rename is not supported by alterSchema")
		}
	}
	if err := writeSidecar(b.dirFor(name), sidecar{Comment: comment, Properties: props}); err != nil {
		return catalog.Schema{}, catalogerr.Runtime("alterSchema", err)
	}
	return catalog.Schema{Name: name, Comment: comment, Properties: props}, nil
}

func (b *Backend) DropSchema(ctx context.Context, name ident.Name, cascade bool) (bool, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := b.dirFor(name)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return false, catalogerr.ErrNoSuchSchema
	}
	if err != nil {
		return false, catalogerr.Runtime("dropSchema", err)
	}
	hasChildren := false
	for _, e := range entries {
		if e.Name() != sidecarFile {
			hasChildren = true
			break
		}
	}
	if hasChildren && !cascade {
		return false, catalogerr.ErrNonEmptySchema
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, catalogerr.Runtime("dropSchema", err)
	}
	return true, nil
}

func writeSidecar(dir string, sc sidecar) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, sidecarFile), data, 0o644)
}

func readSidecar(dir string) (sidecar, error) {
	data, err := os.ReadFile(filepath.Join(dir, sidecarFile))
	if err != nil {
		return sidecar{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return sidecar{}, err
	}
	return sc, nil
}
