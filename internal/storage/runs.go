package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// Run is one execution of a dataset extractor.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Game       string     `json:"game"`
	Dataset    string     `json:"dataset"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	Records    int        `json:"records"`
	Error      string     `json:"error,omitempty"`
}

type Runs struct {
	q queries
}

func (s *Storage) Runs() Runs {
	return Runs{q: s.q}
}

// Start inserts a running record and returns its id.
func (r Runs) Start(ctx context.Context, game, dataset string) (uuid.UUID, error) {
	id := uuid.New()
	if err := r.StartWithID(ctx, id, game, dataset); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// StartWithID is Start for callers that allocate the id themselves.
func (r Runs) StartWithID(ctx context.Context, id uuid.UUID, game, dataset string) error {
	_, err := r.q.exec(ctx,
		`INSERT INTO runs (id, game, dataset, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, game, dataset, time.Now().UTC(), string(RunRunning))
	return handleDBErr(err)
}

// Finish marks a run done, or failed when runErr is not nil.
func (r Runs) Finish(ctx context.Context, id uuid.UUID, records int, runErr error) error {
	status, msg := RunDone, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := r.q.exec(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, records = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), string(status), records, msg, id)
	if err != nil {
		return handleDBErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return handleDBErr(sql.ErrNoRows)
	}
	return nil
}

func (r Runs) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.q.queryRow(ctx,
		`SELECT id, game, dataset, started_at, finished_at, status, records, error
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, handleDBErr(err)
	}
	return run, nil
}

// List returns the latest runs first.
func (r Runs) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.q.query(ctx,
		`SELECT id, game, dataset, started_at, finished_at, status, records, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, handleDBErr(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, handleDBErr(err)
		}
		runs = append(runs, run)
	}
	return runs, handleDBErr(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run      Run
		status   string
		finished sql.NullTime
	)
	if err := s.Scan(&run.ID, &run.Game, &run.Dataset, &run.StartedAt,
		&finished, &status, &run.Records, &run.Error); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}
