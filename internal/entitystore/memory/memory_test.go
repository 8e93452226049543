package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metabridge/catalogd/internal/entitystore"
)

func TestPutGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	e := entitystore.SchemaEntity{
		ID:        1,
		Name:      "s1",
		Namespace: []string{"lake", "pg"},
		Audit:     entitystore.Audit{Creator: "alice", CreateTime: time.Now().UTC()},
	}
	require.NoError(t, s.Put(ctx, e, true))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.ID)
	assert.Equal(t, "alice", got.Audit.Creator)

	byID, err := s.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "s1", byID.Name)
}

func TestGetNotFound(t *testing.T) {
	_, err := New().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, entitystore.ErrNotFound)
}

func TestRenamePreservesID(t *testing.T) {
	s := New()
	ctx := context.Background()
	e := entitystore.SchemaEntity{ID: 42, Name: "s1", Namespace: []string{"lake", "pg"}}
	require.NoError(t, s.Put(ctx, e, true))

	renamed := entitystore.SchemaEntity{ID: 42, Name: "s1_new", Namespace: []string{"lake", "pg"}}
	require.NoError(t, s.Put(ctx, renamed, true))

	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, entitystore.ErrNotFound, "old name should no longer resolve")

	got, err := s.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "s1_new", got.Name)
}

func TestPutRejectsCrossNamespaceIDCollision(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, entitystore.SchemaEntity{ID: 99, Name: "s1", Namespace: []string{"lake", "a"}}, true))

	err := s.Put(ctx, entitystore.SchemaEntity{ID: 99, Name: "s2", Namespace: []string{"lake", "b"}}, true)
	assert.ErrorIs(t, err, entitystore.ErrAlreadyExists)
}

func TestUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	e := entitystore.SchemaEntity{ID: 7, Name: "s1", Namespace: []string{"lake", "pg"},
		Audit: entitystore.Audit{Creator: "alice", CreateTime: time.Now().UTC()}}
	require.NoError(t, s.Put(ctx, e, true))

	updated, err := s.Update(ctx, 7, func(se *entitystore.SchemaEntity) error {
		se.Audit.LastModifier = "bob"
		se.Audit.LastModifiedTime = time.Now().UTC()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Audit.Creator)
	assert.Equal(t, "bob", updated.Audit.LastModifier)
}

func TestUpdateNotFound(t *testing.T) {
	_, err := New().Update(context.Background(), 999, func(se *entitystore.SchemaEntity) error { return nil })
	assert.ErrorIs(t, err, entitystore.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	e := entitystore.SchemaEntity{ID: 1, Name: "s1", Namespace: []string{"lake", "pg"}}
	require.NoError(t, s.Put(ctx, e, true))
	require.NoError(t, s.Delete(ctx, "s1", true))

	_, err := s.GetByID(ctx, 1)
	assert.ErrorIs(t, err, entitystore.ErrNotFound, "expected secondary index entry removed on delete")

	err = s.Delete(ctx, "s1", true)
	assert.ErrorIs(t, err, entitystore.ErrNotFound, "expected ErrNotFound on double delete")
}
