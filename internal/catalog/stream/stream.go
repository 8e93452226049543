// Package stream implements a catalog.SchemaOps backend fronting a
// message-stream catalog (a Cassandra-backed topic-schema registry
// reached through gocql) together with optional structural validation of
// a `protoSchema` property via bufbuild/protocompile. The stream system
// owns its own topic registry but not identity/audit semantics, so it is
// NOT managed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protodesc"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

// ProtoSchemaProperty is the reserved property key carrying an optional
// protobuf schema for a stream's value encoding. When present, it is
// compiled and validated at createSchema/alterSchema time.
const ProtoSchemaProperty = "protoSchema"

// Backend implements catalog.SchemaOps against a Cassandra keyspace used
// as a stream-catalog's schema table.
type Backend struct {
	session *gocql.Session
	table   string
}

// Open connects to the given Cassandra hosts/keyspace and ensures the
// backing table exists.
func Open(hosts []string, keyspace string) (*Backend, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.LocalQuorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("stream: connect: %w", err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS stream_schemas (
		name text PRIMARY KEY,
		comment text,
		properties map<text, text>
	)`
	if err := session.Query(ddl).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("stream: migrate: %w", err)
	}
	return &Backend{session: session, table: "stream_schemas"}, nil
}

func (b *Backend) ListSchemas(ctx context.Context, namespace ident.Name) ([]ident.Name, error) {
	iter := b.session.Query(`SELECT name FROM stream_schemas`).WithContext(ctx).Iter()
	var out []ident.Name
	var name string
	for iter.Scan(&name) {
		out = append(out, namespace.Child(name))
	}
	if err := iter.Close(); err != nil {
		return nil, catalogerr.Runtime("listSchemas", err)
	}
	return out, nil
}

func (b *Backend) CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (catalog.Schema, error) {
	if err := validateProtoSchema(properties); err != nil {
		return catalog.Schema{}, err
	}

	applied, err := b.session.Query(
		`INSERT INTO stream_schemas (name, comment, properties) VALUES (?, ?, ?) IF NOT EXISTS`,
		name.Leaf(), comment, properties,
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	if !applied {
		return catalog.Schema{}, catalogerr.ErrSchemaAlreadyExists
	}
	return catalog.Schema{Name: name, Comment: comment, Properties: properties}, nil
}

func (b *Backend) LoadSchema(ctx context.Context, name ident.Name) (catalog.Schema, error) {
	var comment string
	properties := map[string]string{}
	err := b.session.Query(`SELECT comment, properties FROM stream_schemas WHERE name = ?`, name.Leaf()).
		WithContext(ctx).Scan(&comment, &properties)
	if errors.Is(err, gocql.ErrNotFound) {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("loadSchema", err)
	}
	return catalog.Schema{Name: name, Comment: comment, Properties: properties}, nil
}

func (b *Backend) AlterSchema(ctx context.Context, name ident.Name, changes []catalog.Change) (catalog.Schema, error) {
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
	if err := validateProtoSchema(props); err != nil {
		return catalog.Schema{}, err
	}

	err = b.session.Query(`UPDATE stream_schemas SET comment = ?, properties = ? WHERE name = ?`,
		comment, props, name.Leaf()).WithContext(ctx).Exec()
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("alterSchema", err)
	}
	return catalog.Schema{Name: name, Comment: comment, Properties: props}, nil
}

func (b *Backend) DropSchema(ctx context.Context, name ident.Name, cascade bool) (bool, error) {
	_ = cascade
	if _, err := b.LoadSchema(ctx, name); err != nil {
		return false, err
	}
	if err := b.session.Query(`DELETE FROM stream_schemas WHERE name = ?`, name.Leaf()).WithContext(ctx).Exec(); err != nil {
		return false, catalogerr.Runtime("dropSchema", err)
	}
	return true, nil
}

func (b *Backend) Close() { b.session.Close() }

// maxProtoMessageTypes bounds how many top-level message types a single
// protoSchema property may declare, a structural guard against a runaway
// schema document landing in the stream catalog.
const maxProtoMessageTypes = 64

// validateProtoSchema compiles the optional protoSchema property with
// protocompile, rejecting structurally invalid protobuf source before it
// reaches the stream catalog, then walks the compiled descriptor via
// protodesc to enforce maxProtoMessageTypes.
func validateProtoSchema(properties map[string]string) error {
	src, ok := properties[ProtoSchemaProperty]
	if !ok || src == "" {
		return nil
	}
	const filename = "schema.proto"
	compiler := protocompile.Compiler{
		Resolver: protocompile.ResolverFunc(func(path string) (protocompile.SearchResult, error) {
			if path != filename {
				return protocompile.SearchResult{}, fmt.Errorf("stream: unknown import %q", path)
			}
			return protocompile.SearchResult{Source: strings.NewReader(src)}, nil
		}),
	}
	files, err := compiler.Compile(context.Background(), filename)
	if err != nil {
		return fmt.Errorf("%w: invalid protoSchema: %v", catalogerr.ErrIllegalArgument, err)
	}

	fd := protodesc.ToFileDescriptorProto(files[0])
	if n := len(fd.GetMessageType()); n > maxProtoMessageTypes {
		return fmt.Errorf("%w: protoSchema declares %d message types, exceeding the limit of %d",
			catalogerr.ErrIllegalArgument, n, maxProtoMessageTypes)
	}
	return nil
}
