package fetch

import (
	"context"
	"errors"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// PageRecorder is notified after a page is fetched from the live site.
type PageRecorder interface {
	RecordPage(ctx context.Context, route string, size int) error
}

// Fetcher resolves wiki routes to HTML through a cache and a remote.
type Fetcher struct {
	cache    Cache
	remote   Remote
	baseURL  string
	force    bool
	recorder PageRecorder
	logger   zerolog.Logger
}

type Option func(*Fetcher)

// WithForceUpdate bypasses cache reads. Fetched pages are still stored.
func WithForceUpdate(force bool) Option {
	return func(f *Fetcher) { f.force = force }
}

func WithRecorder(r PageRecorder) Option {
	return func(f *Fetcher) { f.recorder = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func New(cache Cache, remote Remote, baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		cache:   cache,
		remote:  remote,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  global.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the live address of route.
func (f *Fetcher) URL(route string) string {
	return f.baseURL + "/" + strings.TrimPrefix(route, "/")
}

// Fetch returns the HTML of route, reading the cache first unless forced.
func (f *Fetcher) Fetch(ctx context.Context, route string) (string, error) {
	return f.fetch(ctx, route, f.force)
}

// Refresh fetches route live and replaces the cached copy.
func (f *Fetcher) Refresh(ctx context.Context, route string) (string, error) {
	return f.fetch(ctx, route, true)
}

func (f *Fetcher) fetch(ctx context.Context, route string, force bool) (string, error) {
	ctx, span := global.Tracer("fetch").Start(ctx, "fetch.page")
	defer span.End()
	span.SetAttributes(attribute.String("route", route), attribute.Bool("force", force))

	key := CacheKey(route)
	if !force && f.cache != nil {
		data, err := f.cache.Get(ctx, key)
		switch {
		case err == nil:
			metrics.PageFetches.WithLabelValues("cache", "hit").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return string(data), nil
		case errors.Is(err, ec.ErrCacheMiss):
			metrics.PageFetches.WithLabelValues("cache", "miss").Inc()
		default:
			f.logger.Warn().Err(err).Str("route", route).Msg("cache read failed")
		}
	}

	f.logger.Info().Str("route", route).Msg("fetching page")
	data, err := f.remote.Get(ctx, f.URL(route))
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, key, data); err != nil {
			f.logger.Error().Err(err).Str("route", route).Msg("failed to cache page")
		}
	}
	if f.recorder != nil {
		if err := f.recorder.RecordPage(ctx, route, len(data)); err != nil {
			f.logger.Warn().Err(err).Str("route", route).Msg("failed to record page")
		}
	}
	return string(data), nil
}
