// Package relational implements a catalog.SchemaOps backend fronting a
// relational database's native schema namespace (PostgreSQL via lib/pq or
// MySQL via go-sql-driver/mysql). The database engine owns the actual
// CREATE SCHEMA/DROP SCHEMA primitive; since neither engine lets arbitrary
// properties ride along with a schema, this backend keeps a side table for
// comment and property storage and is therefore NOT managed — the
// dispatcher's entity store remains the source of truth for identity and
// audit here.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/metabridge/catalogd/internal/catalog"
	"github.com/metabridge/catalogd/internal/catalogerr"
	"github.com/metabridge/catalogd/internal/ident"
)

// Dialect names the SQL dialect spoken by the underlying engine, which
// controls placeholder style and the native schema DDL verbs.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

const sideTableDDL = `
CREATE TABLE IF NOT EXISTS catalogd_schema_meta (
	schema_name VARCHAR(255) PRIMARY KEY,
	comment TEXT,
	properties TEXT NOT NULL
);
`

// Backend implements catalog.SchemaOps against a relational database's
// native schema namespace plus the side table above.
type Backend struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using driverName ("postgres" or "mysql") and dsn, and
// ensures the side table exists.
func Open(driverName string, dsn string, dialect Dialect) (*Backend, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: open: %w", err)
	}
	if _, err := db.Exec(sideTableDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("relational: migrate side table: %w", err)
	}
	return &Backend{db: db, dialect: dialect}, nil
}

func (b *Backend) placeholder(n int) string {
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b *Backend) quoteIdent(name string) string {
	if b.dialect == DialectPostgres {
		return `"` + name + `"`
	}
	return "`" + name + "`"
}

func (b *Backend) ListSchemas(ctx context.Context, namespace ident.Name) ([]ident.Name, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT schema_name FROM catalogd_schema_meta ORDER BY schema_name`)
	if err != nil {
		return nil, catalogerr.Runtime("listSchemas", err)
	}
	defer rows.Close()

	var out []ident.Name
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, catalogerr.Runtime("listSchemas", err)
		}
		out = append(out, namespace.Child(name))
	}
	return out, rows.Err()
}

func (b *Backend) CreateSchema(ctx context.Context, name ident.Name, comment string, properties map[string]string) (catalog.Schema, error) {
	leaf := name.Leaf()

	var exists int
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM catalogd_schema_meta WHERE schema_name = %s`, b.placeholder(1)), leaf).Scan(&exists)
	if err == nil {
		return catalog.Schema{}, catalogerr.ErrSchemaAlreadyExists
	}
	if err != sql.ErrNoRows {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA %s`, b.quoteIdent(leaf))); err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO catalogd_schema_meta (schema_name, comment, properties) VALUES (%s, %s, %s)`,
		b.placeholder(1), b.placeholder(2), b.placeholder(3)), leaf, comment, string(propsJSON))
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}
	if err := tx.Commit(); err != nil {
		return catalog.Schema{}, catalogerr.Runtime("createSchema", err)
	}

	return catalog.Schema{Name: name, Comment: comment, Properties: properties}, nil
}

func (b *Backend) LoadSchema(ctx context.Context, name ident.Name) (catalog.Schema, error) {
	var comment sql.NullString
	var propsJSON string
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT comment, properties FROM catalogd_schema_meta WHERE schema_name = %s`, b.placeholder(1)),
		name.Leaf()).Scan(&comment, &propsJSON)
	if err == sql.ErrNoRows {
		return catalog.Schema{}, catalogerr.ErrNoSuchSchema
	}
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("loadSchema", err)
	}
	props := map[string]string{}
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return catalog.Schema{}, catalogerr.Runtime("loadSchema", err)
	}
	return catalog.Schema{Name: name, Comment: comment.String, Properties: props}, nil
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

	propsJSON, err := json.Marshal(props)
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("alterSchema", err)
	}
	_, err = b.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE catalogd_schema_meta SET comment = %s, properties = %s WHERE schema_name = %s`,
		b.placeholder(1), b.placeholder(2), b.placeholder(3)), comment, string(propsJSON), name.Leaf())
	if err != nil {
		return catalog.Schema{}, catalogerr.Runtime("alterSchema", err)
	}
	return catalog.Schema{Name: name, Comment: comment, Properties: props}, nil
}

func (b *Backend) DropSchema(ctx context.Context, name ident.Name, cascade bool) (bool, error) {
	leaf := name.Leaf()
	dropStmt := fmt.Sprintf(`DROP SCHEMA %s`, b.quoteIdent(leaf))
	if cascade {
		dropStmt += " CASCADE"
	} else if b.dialect == DialectPostgres {
		dropStmt += " RESTRICT"
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, catalogerr.Runtime("dropSchema", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, dropStmt); err != nil {
		if isNonEmptyViolation(err) {
			return false, catalogerr.ErrNonEmptySchema
		}
		return false, catalogerr.Runtime("dropSchema", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM catalogd_schema_meta WHERE schema_name = %s`, b.placeholder(1)), leaf); err != nil {
		return false, catalogerr.Runtime("dropSchema", err)
	}
	if err := tx.Commit(); err != nil {
		return false, catalogerr.Runtime("dropSchema", err)
	}
	return true, nil
}

// isNonEmptyViolation recognizes the dependent-object error both drivers
// raise when a non-cascading DROP SCHEMA targets a schema that still
// holds objects. Matching on message substring is unfortunate but both
// drivers expose this case as a generic *sql error without a typed
// dependent-object sentinel.
func isNonEmptyViolation(err error) bool {
	msg := err.Error()
	return contains(msg, "depend") || contains(msg, "not empty") || contains(msg, "is not empty")
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func (b *Backend) Close() error { return b.db.Close() }
