package storage_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/storage"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T) *storage.Storage {
	t.Helper()
	db, err := global.OpenDatabase(&global.StorageConfig{
		Driver: global.DriverSQLite,
		SQLite: ":memory:",
	})
	require.NoError(t, err)

	s := storage.New(db, global.DriverSQLite)
	require.NoError(t, s.MigrateUp())
	t.Cleanup(func() { _ = db.Close() })
	return s
}

func TestRebind(t *testing.T) {
	tcs := []struct {
		Name   string
		Query  string
		Expect string
	}{
		{Name: "none", Query: "SELECT 1", Expect: "SELECT 1"},
		{Name: "two", Query: "SELECT * FROM t WHERE a = ? AND b = ?", Expect: "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{Name: "quoted", Query: "SELECT '?' FROM t WHERE a = ?", Expect: "SELECT '?' FROM t WHERE a = $1"},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Expect, storage.Rebind(tc.Query))
		})
	}
}

func TestMigrateUpIsRepeatable(t *testing.T) {
	s := newStorage(t)
	require.NoError(t, s.MigrateUp())
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	id, err := s.Runs().Start(ctx, "genshin", "角色")
	require.NoError(t, err)

	run, err := s.Runs().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, storage.RunRunning, run.Status)
	require.Nil(t, run.FinishedAt)

	require.NoError(t, s.Runs().Finish(ctx, id, 12, nil))
	run, err = s.Runs().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, storage.RunDone, run.Status)
	require.Equal(t, 12, run.Records)
	require.NotNil(t, run.FinishedAt)

	failed, err := s.Runs().Start(ctx, "starrail", "光锥")
	require.NoError(t, err)
	require.NoError(t, s.Runs().Finish(ctx, failed, 0, errors.New("boom")))

	runs, err := s.Runs().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	_, err = s.Runs().Get(ctx, uuid.New())
	require.ErrorIs(t, err, ec.ErrNotFound)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPages(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	require.NoError(t, s.Pages().RecordPage(ctx, "/ys/Amber", 10))
	require.NoError(t, s.Pages().RecordPage(ctx, "/ys/Amber", 20))

	page, err := s.Pages().Get(ctx, "/ys/Amber")
	require.NoError(t, err)
	require.Equal(t, 20, page.Bytes)

	n, err := s.Pages().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDynamicsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	for i, id := range []string{"100", "200"} {
		ok, err := s.Dynamics().Insert(ctx, storage.Dynamic{
			ID:        id,
			UID:       "401742377",
			Data:      json.RawMessage(`{"desc":{"dynamic_id":` + id + `}}`),
			Timestamp: int64(i),
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := s.Dynamics().Insert(ctx, storage.Dynamic{ID: "100", UID: "401742377", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.False(t, ok)

	dyns, err := s.Dynamics().List(ctx, "401742377")
	require.NoError(t, err)
	require.Len(t, dyns, 2)
	require.Equal(t, "200", dyns[0].ID)

	pending, err := s.Dynamics().PendingComments(ctx, "401742377")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, s.WithTx(ctx, func(tx *storage.Storage) error {
		if err := tx.Comments().Insert(ctx,
			storage.Comment{DynamicID: "100", RPID: "1", Data: json.RawMessage(`{"rpid":1}`)},
			storage.Comment{DynamicID: "100", RPID: "2", Data: json.RawMessage(`{"rpid":2}`)},
			storage.Comment{DynamicID: "100", RPID: "1", Data: json.RawMessage(`{"rpid":1}`)},
		); err != nil {
			return err
		}
		return tx.Dynamics().MarkCommentsFetched(ctx, "100")
	}))

	cms, err := s.Comments().ByDynamic(ctx, "100")
	require.NoError(t, err)
	require.Len(t, cms, 2)
	require.JSONEq(t, `{"rpid":2}`, string(cms[1]))

	pending, err = s.Dynamics().PendingComments(ctx, "401742377")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	todo, err := s.Dynamics().PendingOutputs(ctx, "401742377")
	require.NoError(t, err)
	require.Len(t, todo, 1)
	require.Equal(t, "100", todo[0].ID)

	require.NoError(t, s.Outputs().Upsert(ctx, storage.Output{
		DynamicID: "100",
		Dynamic:   json.RawMessage(`{"desc":{}}`),
		Comments:  json.RawMessage(`[]`),
	}))
	todo, err = s.Dynamics().PendingOutputs(ctx, "401742377")
	require.NoError(t, err)
	require.Empty(t, todo)

	outs, err := s.Outputs().List(ctx)
	require.NoError(t, err)
	require.Len(t, outs, 1)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *storage.Storage) error {
		if _, err := tx.Dynamics().Insert(ctx, storage.Dynamic{ID: "1", UID: "u", Data: json.RawMessage(`{}`)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	ok, err := s.Dynamics().Exists(ctx, "1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConstraintViolation(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	_, err := s.DB().ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	err = s.Comments().Insert(ctx, storage.Comment{DynamicID: "missing", RPID: "1", Data: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, ec.ErrDBIntegrityConstrainViolation)
}
