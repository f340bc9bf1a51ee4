package errors_test

import (
	"database/sql"
	stderrors "errors"
	"testing"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsIdentity(t *testing.T) {
	e := ec.ErrMissingNode.Clone().
		WithDetails("selector: div.SenderName").
		Warp(sql.ErrNoRows)

	require.ErrorIs(t, e, ec.ErrMissingNode)
	require.NotErrorIs(t, e, ec.ErrMalformedTable)
	require.ErrorIs(t, e, sql.ErrNoRows, "wrapped error should stay reachable")
	require.Empty(t, ec.ErrMissingNode.Details, "sentinel must not be modified by clones")
	require.Contains(t, e.ErrorWithDetails(), "div.SenderName")
}

func TestPGErrSentinel(t *testing.T) {
	tcs := []struct {
		Name   string
		Code   string
		Expect *ec.Error
	}{
		{"unique violation", pgerrcode.UniqueViolation, ec.ErrDBIntegrityConstrainViolation},
		{"serialization failure", pgerrcode.SerializationFailure, ec.ErrDBTransactionRollback},
		{"invalid text representation", pgerrcode.InvalidTextRepresentation, ec.ErrDBTypeConversionError},
		{"undefined table", pgerrcode.UndefinedTable, ec.ErrDBError},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			var err error = &pgconn.PgError{Code: tc.Code, Message: tc.Name, Severity: "ERROR"}
			pgErr, ok := ec.NewPGErr(err)
			require.True(t, ok)
			require.Equal(t, tc.Code, pgErr.Code)
			require.Same(t, tc.Expect, pgErr.Sentinel())
		})
	}

	_, ok := ec.NewPGErr(stderrors.New("plain"))
	require.False(t, ok)
}

func TestBatchErr(t *testing.T) {
	b := ec.NewBatchErr()
	require.NoError(t, b.ToError())

	b.Add(0, nil)
	b.Add(3, stderrors.New("boom"))
	b.Add(3, stderrors.New("ignored"))
	require.False(t, b.IsEmpty())

	err := b.ToError()
	require.ErrorIs(t, err, ec.ErrDBError)
	require.Contains(t, err.(*ec.Error).Details, "Index 3: boom")
}
