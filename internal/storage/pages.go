package storage

import (
	"context"
	"time"
)

// Page is the cache metadata of a fetched wiki route.
type Page struct {
	Route     string    `json:"route"`
	FetchedAt time.Time `json:"fetched_at"`
	Bytes     int       `json:"bytes"`
}

type Pages struct {
	q queries
}

func (s *Storage) Pages() Pages {
	return Pages{q: s.q}
}

// RecordPage upserts the metadata of route.
func (p Pages) RecordPage(ctx context.Context, route string, size int) error {
	_, err := p.q.exec(ctx,
		`INSERT INTO pages (route, fetched_at, bytes) VALUES (?, ?, ?)
		 ON CONFLICT (route) DO UPDATE SET fetched_at = excluded.fetched_at, bytes = excluded.bytes`,
		route, time.Now().UTC(), size)
	return handleDBErr(err)
}

func (p Pages) Get(ctx context.Context, route string) (Page, error) {
	var page Page
	err := p.q.queryRow(ctx,
		`SELECT route, fetched_at, bytes FROM pages WHERE route = ?`, route).
		Scan(&page.Route, &page.FetchedAt, &page.Bytes)
	if err != nil {
		return Page{}, handleDBErr(err)
	}
	return page, nil
}

func (p Pages) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.q.queryRow(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, handleDBErr(err)
	}
	return n, nil
}
