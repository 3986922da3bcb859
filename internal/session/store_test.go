package session_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/session"
	"boletodesk/internal/stage"
	"boletodesk/internal/testsupport"
)

func TestStoreRoundTripsRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Sessions)
	assert.Empty(t, empty.ActiveID)

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := session.Snapshot{
		Sessions: []session.Session{
			{ID: "b", CreatedAt: created, UpdatedAt: created},
			{
				ID:             "a",
				OperationID:    "op-1",
				OperationLabel: "OP-0001",
				Stage:          stage.Process,
				Fidc:           session.Fidc{ID: "f1", Name: "CAPITAL", Color: "#0e639c"},
				CreatedAt:      created,
				UpdatedAt:      created.Add(time.Minute),
			},
		},
		ActiveID: "a",
	}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	snap.Sessions = snap.Sessions[1:]
	require.NoError(t, store.Save(ctx, snap))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, "a", loaded.Sessions[0].ID)

	require.NoError(t, store.Reset(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Sessions)
}

func TestStoreReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := session.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, session.Snapshot{
		Sessions: []session.Session{{ID: "x", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}},
		ActiveID: "x",
	}))
	require.NoError(t, store.Close())

	reopened := testsupport.MustOpenStore(t, cfg)
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", loaded.ActiveID)
	assert.Equal(t, cfg.SessionDBPath(), reopened.Path())
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := session.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", cfg.SessionDBPath())
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = session.Open(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrSchemaMismatch))
}
