// Package postgres implements entitystore.Store against PostgreSQL, in the
// connection/config/prepared-statement style used by the corpus's
// relational storage backends.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/metabridge/catalogd/internal/entitystore"
)

// Config holds PostgreSQL connection configuration for the entity store.
type Config struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible local-development defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "catalogd",
		Username:        "postgres",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS catalog_entities (
	name TEXT PRIMARY KEY,
	id BIGINT NOT NULL UNIQUE,
	namespace TEXT[] NOT NULL,
	creator TEXT NOT NULL,
	create_time TIMESTAMPTZ NOT NULL,
	last_modifier TEXT NOT NULL DEFAULT '',
	last_modified_time TIMESTAMPTZ
);
`

// Store implements entitystore.Store using a PostgreSQL table, one row per
// schema entity.
type Store struct {
	db    *sql.DB
	stmts *preparedStatements
}

type preparedStatements struct {
	getByName   *sql.Stmt
	getByID     *sql.Stmt
	deleteByName *sql.Stmt
}

// Open connects to PostgreSQL, ensures the backing table exists, and
// prepares the statements this store uses on every call.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	s := &Store{db: db}
	if s.stmts, err = s.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare() (*preparedStatements, error) {
	var p preparedStatements
	var err error
	if p.getByName, err = s.db.Prepare(`SELECT name, id, namespace, creator, create_time, last_modifier, last_modified_time FROM catalog_entities WHERE name = $1`); err != nil {
		return nil, err
	}
	if p.getByID, err = s.db.Prepare(`SELECT name, id, namespace, creator, create_time, last_modifier, last_modified_time FROM catalog_entities WHERE id = $1`); err != nil {
		return nil, err
	}
	if p.deleteByName, err = s.db.Prepare(`DELETE FROM catalog_entities WHERE name = $1`); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanRow(row *sql.Row) (*entitystore.SchemaEntity, error) {
	var e entitystore.SchemaEntity
	var namespace pq.StringArray
	var lastModifiedTime sql.NullTime
	err := row.Scan(&e.Name, &e.ID, &namespace, &e.Audit.Creator, &e.Audit.CreateTime,
		&e.Audit.LastModifier, &lastModifiedTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entitystore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Namespace = namespace
	if lastModifiedTime.Valid {
		e.Audit.LastModifiedTime = lastModifiedTime.Time
	}
	return &e, nil
}

func (s *Store) Put(ctx context.Context, entity entitystore.SchemaEntity, overwrite bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM catalog_entities WHERE id = $1`, entity.ID).Scan(&existingName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no existing row for this id, fresh insert
	case err != nil:
		return fmt.Errorf("postgres: lookup by id: %w", err)
	case existingName != entity.Name:
		if !overwrite {
			return entitystore.ErrAlreadyExists
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entities WHERE name = $1`, existingName); err != nil {
			return fmt.Errorf("postgres: delete stale row: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO catalog_entities (name, id, namespace, creator, create_time, last_modifier, last_modified_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			id = EXCLUDED.id, namespace = EXCLUDED.namespace, creator = EXCLUDED.creator,
			create_time = EXCLUDED.create_time, last_modifier = EXCLUDED.last_modifier,
			last_modified_time = EXCLUDED.last_modified_time
	`, entity.Name, entity.ID, pq.Array(entity.Namespace), entity.Audit.Creator, entity.Audit.CreateTime,
		entity.Audit.LastModifier, nullableTime(entity.Audit.LastModifiedTime))
	if err != nil {
		return fmt.Errorf("postgres: upsert: %w", err)
	}
	return tx.Commit()
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *Store) Get(ctx context.Context, name string) (*entitystore.SchemaEntity, error) {
	return scanRow(s.stmts.getByName.QueryRowContext(ctx, name))
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*entitystore.SchemaEntity, error) {
	return scanRow(s.stmts.getByID.QueryRowContext(ctx, int64(id)))
}

func (s *Store) Update(ctx context.Context, id uint64, f entitystore.UpdateFunc) (*entitystore.SchemaEntity, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := existing.Clone()
	if err := f(&updated); err != nil {
		return nil, err
	}
	updated.ID = id
	if err := s.Put(ctx, updated, true); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, name string, cascade bool) error {
	_ = cascade
	res, err := s.stmts.deleteByName.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return entitystore.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation, surfaced so higher layers can map it onto
// entitystore.ErrAlreadyExists without depending on lib/pq directly.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
