// Package storage persists crawl runs, page metadata and the social feed
// on database/sql. SQLite (modernc) and Postgres (pgx) are supported.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage struct {
	db     *sql.DB
	driver string
	q      queries
}

// New wraps db. driver is one of global.DriverSQLite or global.DriverPostgres.
func New(db *sql.DB, driver string) *Storage {
	return &Storage{
		db:     db,
		driver: driver,
		q:      queries{db: db, driver: driver},
	}
}

// Open connects to the configured database.
func Open(cfg *global.StorageConfig) (*Storage, error) {
	db, err := global.OpenDatabase(cfg)
	if err != nil {
		return nil, handleDBErr(err)
	}
	return New(db, cfg.Driver), nil
}

func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Driver() string {
	return s.driver
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
func (s *Storage) WithTx(ctx context.Context, fn func(tx *Storage) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return handleDBErr(err)
	}
	defer tx.Rollback()

	txs := &Storage{db: s.db, driver: s.driver, q: queries{db: tx, driver: s.driver}}
	if err := fn(txs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return handleDBErr(err)
	}
	return nil
}

// queries executes statements written with ? placeholders against either
// driver.
type queries struct {
	db     DBTX
	driver string
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

func (q queries) rebind(query string) string {
	if q.driver != global.DriverPostgres {
		return query
	}
	return Rebind(query)
}

// Rebind rewrites ? placeholders into Postgres $n placeholders. Question
// marks inside single-quoted literals are left alone.
func Rebind(query string) string {
	var (
		sb      strings.Builder
		n       int
		inQuote bool
	)
	sb.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// handleDBErr maps driver errors onto *errors.Error. A nil err yields nil.
func handleDBErr(err error) error {
	if err == nil {
		return nil
	}

	if pgerr, ok := ec.NewPGErr(err); ok {
		return pgerr.Sentinel().Clone().
			WithMessage(pgerr.Message).
			WithDetails(pgerr.Details).
			Warp(err)
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return sqliteSentinel(serr.Code()).Clone().
			WithDetails(serr.Error()).
			Warp(err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ec.ErrNotFound.Clone().
			Warp(err)
	}

	return ec.ErrDBError.Clone().
		WithDetails(err.Error()).
		Warp(err)
}

// sqliteSentinel maps the primary result code onto a database sentinel.
func sqliteSentinel(code int) *ec.Error {
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return ec.ErrDBIntegrityConstrainViolation
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return ec.ErrDBTransactionRollback
	case sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_RANGE:
		return ec.ErrDBTypeConversionError
	default:
		return ec.ErrDBError
	}
}
