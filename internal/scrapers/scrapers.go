// Package scrapers holds the per-page extractors of the Genshin Impact and
// Honkai: Star Rail wikis and the registry of datasets built from them.
package scrapers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/browser"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	GameGenshin  = "genshin"
	GameStarRail = "starrail"
)

// Object is an insertion ordered JSON object.
type Object = orderedmap.OrderedMap[string, any]

func NewObject() *Object {
	return orderedmap.New[string, any]()
}

// PageFetcher returns the HTML of a wiki route. Refresh skips the cache.
type PageFetcher interface {
	Fetch(ctx context.Context, route string) (string, error)
	Refresh(ctx context.Context, route string) (string, error)
	URL(route string) string
}

// MessageSource renders a JavaScript driven message page.
type MessageSource interface {
	Crawl(ctx context.Context, url string) (*browser.Messages, error)
}

// Site is what an extractor needs to read one wiki.
type Site struct {
	Game     string
	Fetcher  PageFetcher
	Dialect  markup.Dialect
	Messages MessageSource
	Logger   zerolog.Logger
}

type SiteOption func(*Site)

func WithMessageSource(m MessageSource) SiteOption {
	return func(s *Site) { s.Messages = m }
}

func WithSiteLogger(l zerolog.Logger) SiteOption {
	return func(s *Site) { s.Logger = l }
}

// NewSite picks the dialect of game.
func NewSite(game string, f PageFetcher, opts ...SiteOption) (*Site, error) {
	var d markup.Dialect
	switch game {
	case GameGenshin:
		d = markup.Genshin
	case GameStarRail:
		d = markup.StarRail
	default:
		return nil, fmt.Errorf("unknown game %q", game)
	}

	s := &Site{
		Game:    game,
		Fetcher: f,
		Dialect: d,
		Logger:  global.Logger.With().Str("game", game).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Document fetches route and parses it.
func (s *Site) Document(ctx context.Context, route string) (*goquery.Document, error) {
	page, err := s.Fetcher.Fetch(ctx, route)
	if err != nil {
		return nil, err
	}
	return parseDocument(route, page)
}

// FreshDocument is Document for pages that change between runs.
func (s *Site) FreshDocument(ctx context.Context, route string) (*goquery.Document, error) {
	page, err := s.Fetcher.Refresh(ctx, route)
	if err != nil {
		return nil, err
	}
	return parseDocument(route, page)
}

func parseDocument(route, page string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, ec.ErrWebpageParsing.Clone().
			WithDetails("route: " + route).
			Warp(err)
	}
	return doc, nil
}

// skip logs an entity level failure. The caller moves on to the next
// entity.
func (s *Site) skip(dataset, entity string, err error) {
	metrics.ParseFailures.WithLabelValues(dataset).Inc()
	s.Logger.Warn().
		Err(err).
		Str("dataset", dataset).
		Str("entity", entity).
		Msg("entity skipped")
}

// Dataset is one output file of a game.
type Dataset struct {
	Game string
	Dir  string
	File string
	Run  func(ctx context.Context, s *Site) (any, error)
}

// Name is File without its extension.
func (d Dataset) Name() string {
	return strings.TrimSuffix(d.File, ".json")
}

func (d Dataset) Destination() sink.Destination {
	return sink.Destination{
		Game:    d.Game,
		Dataset: d.Name(),
		Dir:     d.Dir,
		File:    d.File,
	}
}

// Datasets returns the registry of game.
func Datasets(game string) ([]Dataset, error) {
	switch game {
	case GameGenshin:
		return GenshinDatasets, nil
	case GameStarRail:
		return StarRailDatasets, nil
	default:
		return nil, fmt.Errorf("unknown game %q", game)
	}
}

// Select returns the datasets of game named in names, in registry order.
// An empty names selects all of them.
func Select(game string, names ...string) ([]Dataset, error) {
	all, err := Datasets(game)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return all, nil
	}

	var out []Dataset
	for _, d := range all {
		if slices.Contains(names, d.Name()) {
			out = append(out, d)
		}
	}
	for _, n := range names {
		if !slices.ContainsFunc(all, func(d Dataset) bool { return d.Name() == n }) {
			return nil, fmt.Errorf("unknown %s dataset %q", game, n)
		}
	}
	return out, nil
}

// size is the number of entries of a dataset result.
func size(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case *Object:
		return t.Len()
	case []any:
		return len(t)
	case []*Object:
		return len(t)
	case interface{ Len() int }:
		return t.Len()
	default:
		return 1
	}
}

// compact drops empty values from o and returns it.
func compact(o *Object) *Object {
	for pair := o.Oldest(); pair != nil; {
		next := pair.Next()
		if empty(pair.Value) {
			o.Delete(pair.Key)
		}
		pair = next
	}
	return o
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []*markup.Fields:
		return len(t) == 0
	case []*Object:
		return len(t) == 0
	case interface{ Len() int }:
		return t.Len() == 0
	}
	return false
}
