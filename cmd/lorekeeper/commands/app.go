package commands

import (
	"context"
	"fmt"

	"github.com/ChiaYuChang/lorekeeper/internal/browser"
	"github.com/ChiaYuChang/lorekeeper/internal/fetch"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/scrapers"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/ChiaYuChang/lorekeeper/internal/storage"
	"github.com/ChiaYuChang/lorekeeper/internal/workers/publishers"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// section loads one configuration section and validates it. Commands only
// load the sections they use.
func section[T interface{ Validate() error }](name string, load func() T) (T, error) {
	cfg := load()
	if err := cfg.Validate(); err != nil {
		var zero T
		return zero, fmt.Errorf("%s configuration: %w", name, err)
	}
	return cfg, nil
}

// connectStorage opens and pings the configured database.
func connectStorage(ctx context.Context) (*storage.Storage, error) {
	cfg, err := section("storage", global.LoadStorageConfig)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.DB().PingContext(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	global.Logger.Debug().Str("driver", cfg.Driver).Msg("database connected")
	return store, nil
}

// openStorage connects to the database and applies pending migrations.
func openStorage(ctx context.Context) (*storage.Storage, error) {
	store, err := connectStorage(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.MigrateUp(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newPageCache returns the cache selected by FETCH_CACHE.
func newPageCache(cfg *global.FetchConfig) (fetch.Cache, error) {
	if cfg.Cache != "redis" {
		disk, err := fetch.NewDiskCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		return disk, nil
	}

	rcfg, err := section("redis", global.LoadRedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rcfg.Addr(),
		Password: rcfg.Password,
		DB:       rcfg.DB,
	})
	global.Logger.Debug().Str("addr", rcfg.Addr()).Int("db", rcfg.DB).Msg("redis page cache")
	return fetch.NewRedisCache(client, rcfg.Prefix, rcfg.TTL), nil
}

// newSite builds the wiki site of game over the page cache and the live
// wiki. Star Rail sites also get the headless browser for the message page.
func newSite(game string, cfg *global.FetchConfig, store *storage.Storage, force bool) (*scrapers.Site, error) {
	cache, err := newPageCache(cfg)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.New(cache, fetch.NewCollyFetcher(cfg), cfg.BaseURL,
		fetch.WithForceUpdate(force || cfg.ForceUpdate),
		fetch.WithRecorder(store.Pages()),
		fetch.WithLogger(global.Logger.With().Str("component", "fetch").Logger()))

	var opts []scrapers.SiteOption
	if game == scrapers.GameStarRail {
		bcfg, err := section("browser", global.LoadBrowserConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scrapers.WithMessageSource(browser.NewMessageCrawler(bcfg)))
	}
	return scrapers.NewSite(game, fetcher, opts...)
}

// connectNATS connects to the configured server.
func connectNATS() (*nats.Conn, error) {
	cfg, err := section("nats", global.LoadNATSConfig)
	if err != nil {
		return nil, err
	}
	nc, err := cfg.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL(), err)
	}
	global.Logger.Info().Str("url", cfg.URL()).Msg("connected to NATS")
	return nc, nil
}

// newSink writes datasets under the output directory and, when nc is set,
// publishes them as well.
func newSink(cfg *global.OutputConfig, nc *nats.Conn) sink.Sink {
	files := sink.NewFileSink(cfg.Dir)
	if nc == nil {
		return files
	}
	pub := publishers.Publisher{Conn: nc, Tracer: global.Tracer("sink")}
	return sink.Multi(files, sink.NewNATSSink(pub))
}

func drain(nc *nats.Conn) {
	if nc == nil {
		return
	}
	if err := nc.Drain(); err != nil {
		global.Logger.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}
