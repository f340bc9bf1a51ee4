package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Dynamic is a raw feed card as returned by the space history endpoint.
type Dynamic struct {
	ID        string          `json:"id"`
	UID       string          `json:"uid"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"ts"`
}

type Dynamics struct {
	q queries
}

func (s *Storage) Dynamics() Dynamics {
	return Dynamics{q: s.q}
}

// Insert stores d unless a dynamic with the same id exists. It reports
// whether a row was written.
func (d Dynamics) Insert(ctx context.Context, dyn Dynamic) (bool, error) {
	res, err := d.q.exec(ctx,
		`INSERT INTO dynamics (id, uid, json, ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		dyn.ID, dyn.UID, string(dyn.Data), dyn.Timestamp)
	if err != nil {
		return false, handleDBErr(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d Dynamics) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := d.q.queryRow(ctx, `SELECT COUNT(*) FROM dynamics WHERE id = ?`, id).Scan(&n); err != nil {
		return false, handleDBErr(err)
	}
	return n > 0, nil
}

func (d Dynamics) Get(ctx context.Context, id string) (Dynamic, error) {
	var (
		dyn  Dynamic
		data string
	)
	err := d.q.queryRow(ctx,
		`SELECT id, uid, json, ts FROM dynamics WHERE id = ?`, id).
		Scan(&dyn.ID, &dyn.UID, &data, &dyn.Timestamp)
	if err != nil {
		return Dynamic{}, handleDBErr(err)
	}
	dyn.Data = json.RawMessage(data)
	return dyn, nil
}

// List returns the dynamics of uid, newest first.
func (d Dynamics) List(ctx context.Context, uid string) ([]Dynamic, error) {
	return d.list(ctx,
		`SELECT id, uid, json, ts FROM dynamics WHERE uid = ? ORDER BY ts DESC, id DESC`, uid)
}

// PendingComments returns the dynamics whose comments were never fetched.
func (d Dynamics) PendingComments(ctx context.Context, uid string) ([]Dynamic, error) {
	return d.list(ctx,
		`SELECT id, uid, json, ts FROM dynamics
		 WHERE uid = ? AND comments_fetched_at IS NULL ORDER BY ts DESC, id DESC`, uid)
}

// PendingOutputs returns the dynamics with fetched comments and no output.
func (d Dynamics) PendingOutputs(ctx context.Context, uid string) ([]Dynamic, error) {
	return d.list(ctx,
		`SELECT d.id, d.uid, d.json, d.ts FROM dynamics d
		 LEFT JOIN outputs o ON o.dynamic_id = d.id
		 WHERE d.uid = ? AND d.comments_fetched_at IS NOT NULL AND o.dynamic_id IS NULL
		 ORDER BY d.ts DESC, d.id DESC`, uid)
}

func (d Dynamics) MarkCommentsFetched(ctx context.Context, id string) error {
	_, err := d.q.exec(ctx,
		`UPDATE dynamics SET comments_fetched_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return handleDBErr(err)
}

func (d Dynamics) list(ctx context.Context, query string, args ...any) ([]Dynamic, error) {
	rows, err := d.q.query(ctx, query, args...)
	if err != nil {
		return nil, handleDBErr(err)
	}
	defer rows.Close()

	dyns := []Dynamic{}
	for rows.Next() {
		var (
			dyn  Dynamic
			data string
		)
		if err := rows.Scan(&dyn.ID, &dyn.UID, &data, &dyn.Timestamp); err != nil {
			return nil, handleDBErr(err)
		}
		dyn.Data = json.RawMessage(data)
		dyns = append(dyns, dyn)
	}
	return dyns, handleDBErr(rows.Err())
}

// Comment is one raw reply of a dynamic.
type Comment struct {
	DynamicID string          `json:"dynamic_id"`
	RPID      string          `json:"rpid"`
	Data      json.RawMessage `json:"data"`
}

type Comments struct {
	q queries
}

func (s *Storage) Comments() Comments {
	return Comments{q: s.q}
}

// Insert stores replies in order, skipping ones already present.
func (c Comments) Insert(ctx context.Context, comments ...Comment) error {
	for _, cm := range comments {
		if _, err := c.q.exec(ctx,
			`INSERT INTO comments (dynamic_id, rpid, json) VALUES (?, ?, ?)
			 ON CONFLICT (dynamic_id, rpid) DO NOTHING`,
			cm.DynamicID, cm.RPID, string(cm.Data)); err != nil {
			return handleDBErr(err)
		}
	}
	return nil
}

// ByDynamic returns the replies of a dynamic in insertion order.
func (c Comments) ByDynamic(ctx context.Context, dynamicID string) ([]json.RawMessage, error) {
	rows, err := c.q.query(ctx,
		`SELECT json FROM comments WHERE dynamic_id = ? ORDER BY id`, dynamicID)
	if err != nil {
		return nil, handleDBErr(err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, handleDBErr(err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, handleDBErr(rows.Err())
}

func (c Comments) Count(ctx context.Context, dynamicID string) (int, error) {
	var n int
	if err := c.q.queryRow(ctx,
		`SELECT COUNT(*) FROM comments WHERE dynamic_id = ?`, dynamicID).Scan(&n); err != nil {
		return 0, handleDBErr(err)
	}
	return n, nil
}

// Output is a processed dynamic with its reply tree.
type Output struct {
	DynamicID string          `json:"dynamic_id"`
	Dynamic   json.RawMessage `json:"dynamic"`
	Comments  json.RawMessage `json:"comments"`
}

type Outputs struct {
	q queries
}

func (s *Storage) Outputs() Outputs {
	return Outputs{q: s.q}
}

func (o Outputs) Upsert(ctx context.Context, out Output) error {
	_, err := o.q.exec(ctx,
		`INSERT INTO outputs (dynamic_id, dynamic, comments) VALUES (?, ?, ?)
		 ON CONFLICT (dynamic_id) DO UPDATE SET dynamic = excluded.dynamic, comments = excluded.comments`,
		out.DynamicID, string(out.Dynamic), string(out.Comments))
	return handleDBErr(err)
}

// List returns every output ordered by dynamic id.
func (o Outputs) List(ctx context.Context) ([]Output, error) {
	rows, err := o.q.query(ctx,
		`SELECT dynamic_id, dynamic, comments FROM outputs ORDER BY dynamic_id`)
	if err != nil {
		return nil, handleDBErr(err)
	}
	defer rows.Close()

	outs := []Output{}
	for rows.Next() {
		var (
			out      Output
			dyn, cms string
		)
		if err := rows.Scan(&out.DynamicID, &dyn, &cms); err != nil {
			return nil, handleDBErr(err)
		}
		out.Dynamic, out.Comments = json.RawMessage(dyn), json.RawMessage(cms)
		outs = append(outs, out)
	}
	return outs, handleDBErr(rows.Err())
}
