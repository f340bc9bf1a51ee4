// Package cfggen writes a starter configuration file for a command profile.
// Values present in the source are kept, the others get their defaults.
package cfggen

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/viper"
)

type CfgGen struct {
	dst *viper.Viper // output configuration
	src *viper.Viper // existing environment or .env values
}

func NewCfgGen(src *viper.Viper) *CfgGen {
	return &CfgGen{
		dst: viper.New(),
		src: src,
	}
}

// Profiles lists the sections written for each command profile.
var Profiles = map[string][]func(*CfgGen){
	"crawl": {
		(*CfgGen).AddModeConfig, (*CfgGen).AddFetchConfig, (*CfgGen).AddRedisConfig,
		(*CfgGen).AddStorageConfig, (*CfgGen).AddBrowserConfig, (*CfgGen).AddOutputConfig,
		(*CfgGen).AddOtelConfig,
	},
	"bilibili": {
		(*CfgGen).AddModeConfig, (*CfgGen).AddStorageConfig, (*CfgGen).AddBilibiliConfig,
		(*CfgGen).AddOutputConfig, (*CfgGen).AddOtelConfig,
	},
	"worker": {
		(*CfgGen).AddModeConfig, (*CfgGen).AddFetchConfig, (*CfgGen).AddRedisConfig,
		(*CfgGen).AddStorageConfig, (*CfgGen).AddBrowserConfig, (*CfgGen).AddOutputConfig,
		(*CfgGen).AddNATSConfig, (*CfgGen).AddWorkerConfig, (*CfgGen).AddOtelConfig,
	},
	"metrics": {
		(*CfgGen).AddModeConfig, (*CfgGen).AddMetricsConfig,
	},
}

// ProfileNames returns the known profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Generate adds the sections of the named profiles. "all" selects every
// profile.
func (c *CfgGen) Generate(profiles ...string) error {
	if slices.Contains(profiles, "all") {
		profiles = ProfileNames()
	}
	for _, p := range profiles {
		sections, ok := Profiles[p]
		if !ok {
			return fmt.Errorf("unknown profile %q", p)
		}
		for _, add := range sections {
			add(c)
		}
	}
	return nil
}

// WriteTo encodes the configuration as t, one of viper's config types.
func (c *CfgGen) WriteTo(w io.Writer, t string) error {
	c.dst.SetConfigType(t)
	if err := c.dst.WriteConfigTo(w); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

// Get returns a generated value.
func (c *CfgGen) Get(key string) any {
	return c.dst.Get(key)
}

func (c *CfgGen) set(key string, def any) {
	if c.src != nil && c.src.IsSet(key) {
		c.dst.Set(key, c.src.Get(key))
		return
	}
	c.dst.Set(key, def)
}

func (c *CfgGen) AddModeConfig() {
	c.set("MODE", "dev")
}

func (c *CfgGen) AddFetchConfig() {
	c.set("FETCH_BASE_URL", "https://wiki.biligame.com")
	c.set("FETCH_CACHE", "disk")
	c.set("FETCH_CACHE_DIR", "./cache")
	c.set("FETCH_FORCE_UPDATE", false)
	c.set("FETCH_TIMEOUT", 30*time.Second)
	c.set("FETCH_RETRIES", 3)
	c.set("FETCH_HOST_RATE", 1.0)
	c.set("FETCH_HOST_BURST", 2)
	c.set("FETCH_PARALLELISM", 2)
	c.set("FETCH_DELAY", 500*time.Millisecond)
	c.set("FETCH_RANDOM_DELAY", 500*time.Millisecond)
	c.set("FETCH_USER_AGENT", "")
	c.set("FETCH_DATASET_LIMIT", 4)
}

func (c *CfgGen) AddRedisConfig() {
	c.set("REDIS_HOST", "localhost")
	c.set("REDIS_PORT", 6379)
	c.set("REDIS_PASSWORD", "")
	c.set("REDIS_DB", 0)
	c.set("REDIS_PREFIX", "lorekeeper:page:")
	c.set("REDIS_TTL", time.Duration(0))
}

func (c *CfgGen) AddStorageConfig() {
	c.set("STORAGE_DRIVER", "sqlite")
	c.set("SQLITE_PATH", "./lorekeeper.db")
	c.AddPostgresConfig()
}

func (c *CfgGen) AddPostgresConfig() {
	c.set("POSTGRES_HOST", "localhost")
	c.set("POSTGRES_PORT", 5432)
	c.set("POSTGRES_USER", "postgres")
	c.set("POSTGRES_PASSWORD_FILE", "")
	c.set("POSTGRES_APP_DB", "lorekeeper")
	c.set("POSTGRES_SCHEMA", "public")
	c.set("POSTGRES_SSLMODE", false)
}

func (c *CfgGen) AddBrowserConfig() {
	c.set("BROWSER_HEADLESS", true)
	c.set("BROWSER_EXEC_PATH", "")
	c.set("BROWSER_TIMEOUT", 10*time.Minute)
	c.set("BROWSER_WAIT", 500*time.Millisecond)
}

func (c *CfgGen) AddOutputConfig() {
	c.set("OUTPUT_DIR", "./output")
}

func (c *CfgGen) AddBilibiliConfig() {
	c.set("BILIBILI_BASE_URL", "https://api.bilibili.com")
	c.set("BILIBILI_FEED_URL", "https://api.vc.bilibili.com")
	c.set("BILIBILI_RATE", 2.0)
	c.set("BILIBILI_UID", "401742377")
	c.set("BILIBILI_MIN_LIKE", 100)
	c.set("BILIBILI_PAGE_LIMIT", 10)
	c.set("BILIBILI_DELAY", 2500*time.Millisecond)
	c.set("BILIBILI_COOKIE", "")
	c.set("BILIBILI_WORKERS", 8)
	c.set("BILIBILI_BATCH_SIZE", 48)
}

func (c *CfgGen) AddNATSConfig() {
	c.set("NATS_HOST", "localhost")
	c.set("NATS_PORT", 4222)
	c.set("NATS_USER", "")
	c.set("NATS_PASSWORD", "")
}

func (c *CfgGen) AddWorkerConfig() {
	c.set("WORKER_STREAM", "LOREKEEPER")
	c.set("WORKER_CONSUMER", "crawl-worker")
	c.set("WORKER_TIMEOUT", 2*time.Hour)
	c.set("WORKER_SHUTDOWN_WAIT_TIME", 10*time.Second)
	c.set("WORKER_HEALTH_CHECK_HOST", "")
	c.set("WORKER_HEALTH_CHECK_PORT", 8081)
}

func (c *CfgGen) AddMetricsConfig() {
	c.set("METRICS_HOST", "")
	c.set("METRICS_PORT", 9090)
}

func (c *CfgGen) AddOtelConfig() {
	c.set("OTEL_SERVICE_NAME", "lorekeeper")
	c.set("OTEL_COLLECTOR_ENDPOINT", "")
	c.set("OTEL_ENVIRONMENT", "")
}
