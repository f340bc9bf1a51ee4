package global

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/spf13/viper"
)

// FetchConfig controls how wiki pages are fetched and cached.
type FetchConfig struct {
	BaseURL      string        `json:"base_url"      validate:"required,url"           mapstructure:"base_url"`
	CacheDir     string        `json:"cache_dir"     validate:"required_if=Cache disk" mapstructure:"cache_dir"`
	Cache        string        `json:"cache"         validate:"oneof=disk redis"       mapstructure:"cache"`
	ForceUpdate  bool          `json:"force_update"                                    mapstructure:"force_update"`
	Timeout      time.Duration `json:"timeout"       validate:"gt=0"                   mapstructure:"timeout"`
	Retries      int           `json:"retries"       validate:"gte=0,lte=10"           mapstructure:"retries"`
	HostRate     float64       `json:"host_rate"     validate:"gt=0"                   mapstructure:"host_rate"`
	HostBurst    int           `json:"host_burst"    validate:"gte=1"                  mapstructure:"host_burst"`
	Parallelism  int           `json:"parallelism"   validate:"gte=1"                  mapstructure:"parallelism"`
	Delay        time.Duration `json:"delay"         validate:"gte=0"                  mapstructure:"delay"`
	RandomDelay  time.Duration `json:"random_delay"  validate:"gte=0"                  mapstructure:"random_delay"`
	UserAgent    string        `json:"user_agent"                                      mapstructure:"user_agent"`
	DatasetLimit int           `json:"dataset_limit" validate:"gte=1"                  mapstructure:"dataset_limit"`
}

func LoadFetchConfig() *FetchConfig {
	viper.SetDefault("FETCH_BASE_URL", "https://wiki.biligame.com")
	viper.SetDefault("FETCH_CACHE", "disk")
	viper.SetDefault("FETCH_CACHE_DIR", "./cache")
	viper.SetDefault("FETCH_TIMEOUT", 30*time.Second)
	viper.SetDefault("FETCH_RETRIES", 3)
	viper.SetDefault("FETCH_HOST_RATE", 1.0)
	viper.SetDefault("FETCH_HOST_BURST", 2)
	viper.SetDefault("FETCH_PARALLELISM", 2)
	viper.SetDefault("FETCH_DELAY", 500*time.Millisecond)
	viper.SetDefault("FETCH_RANDOM_DELAY", 500*time.Millisecond)
	viper.SetDefault("FETCH_DATASET_LIMIT", 4)

	return &FetchConfig{
		BaseURL:      viper.GetString("FETCH_BASE_URL"),
		CacheDir:     viper.GetString("FETCH_CACHE_DIR"),
		Cache:        viper.GetString("FETCH_CACHE"),
		ForceUpdate:  viper.GetBool("FETCH_FORCE_UPDATE"),
		Timeout:      viper.GetDuration("FETCH_TIMEOUT"),
		Retries:      viper.GetInt("FETCH_RETRIES"),
		HostRate:     viper.GetFloat64("FETCH_HOST_RATE"),
		HostBurst:    viper.GetInt("FETCH_HOST_BURST"),
		Parallelism:  viper.GetInt("FETCH_PARALLELISM"),
		Delay:        viper.GetDuration("FETCH_DELAY"),
		RandomDelay:  viper.GetDuration("FETCH_RANDOM_DELAY"),
		UserAgent:    viper.GetString("FETCH_USER_AGENT"),
		DatasetLimit: viper.GetInt("FETCH_DATASET_LIMIT"),
	}
}

func (c *FetchConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid fetch configuration: %w", err)
	}
	return nil
}

// RedisConfig is used by the page cache when Fetch.Cache is "redis".
type RedisConfig struct {
	Host     string        `json:"host"     validate:"required" mapstructure:"host"`
	Port     int           `json:"port"     validate:"required" mapstructure:"port"`
	Password string        `json:"password"                     mapstructure:"password"`
	DB       int           `json:"db"       validate:"gte=0"    mapstructure:"db"`
	Prefix   string        `json:"prefix"                       mapstructure:"prefix"`
	TTL      time.Duration `json:"ttl"      validate:"gte=0"    mapstructure:"ttl"`
}

func LoadRedisConfig() *RedisConfig {
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PREFIX", "lorekeeper:page:")

	return &RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		Prefix:   viper.GetString("REDIS_PREFIX"),
		TTL:      viper.GetDuration("REDIS_TTL"),
	}
}

func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *RedisConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}
	return nil
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects the relational store.
type StorageConfig struct {
	Driver   string          `json:"driver"              validate:"oneof=sqlite postgres"    mapstructure:"driver"`
	SQLite   string          `json:"sqlite"              validate:"required_if=Driver sqlite" mapstructure:"sqlite"`
	Postgres *PostgresConfig `json:"postgres,omitempty"                                      mapstructure:"postgres"`
}

func LoadStorageConfig() *StorageConfig {
	viper.SetDefault("STORAGE_DRIVER", DriverSQLite)
	viper.SetDefault("SQLITE_PATH", "./lorekeeper.db")

	c := &StorageConfig{
		Driver: viper.GetString("STORAGE_DRIVER"),
		SQLite: viper.GetString("SQLITE_PATH"),
	}
	if c.Driver == DriverPostgres {
		c.Postgres = LoadPostgresConfig()
	}
	return c
}

// DriverName returns the database/sql driver registered for c.Driver.
func (c *StorageConfig) DriverName() string {
	return utils.IfElse(c.Driver == DriverPostgres, "pgx", "sqlite")
}

// DSN returns the data source name for c.DriverName.
func (c *StorageConfig) DSN() string {
	if c.Driver == DriverPostgres && c.Postgres != nil {
		return c.Postgres.URL()
	}
	return c.SQLite
}

func (c *StorageConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}
	if c.Driver == DriverPostgres {
		if c.Postgres == nil {
			return fmt.Errorf("postgres driver selected without postgres configuration")
		}
		return c.Postgres.Validate()
	}
	return nil
}

type OtelConfig struct {
	ServiceName       string `json:"service_name"       validate:"required" mapstructure:"service_name"`
	CollectorEndpoint string `json:"collector_endpoint"                     mapstructure:"collector_endpoint"`
	Environment       string `json:"environment"                            mapstructure:"environment"`
}

func LoadOtelConfig() *OtelConfig {
	viper.SetDefault("OTEL_SERVICE_NAME", "lorekeeper")
	return &OtelConfig{
		ServiceName:       viper.GetString("OTEL_SERVICE_NAME"),
		CollectorEndpoint: viper.GetString("OTEL_COLLECTOR_ENDPOINT"),
		Environment:       utils.DefaultIfZero(viper.GetString("OTEL_ENVIRONMENT"), Mode()),
	}
}

// Enabled reports whether spans should be exported.
func (c *OtelConfig) Enabled() bool {
	return c.CollectorEndpoint != ""
}

func (c *OtelConfig) Validate() error {
	return Validator().Struct(c)
}

// BilibiliConfig configures the social feed collector.
type BilibiliConfig struct {
	BaseURL   string        `json:"base_url"   validate:"required,url" mapstructure:"base_url"`
	FeedURL   string        `json:"feed_url"   validate:"required,url" mapstructure:"feed_url"`
	Rate      float64       `json:"rate"       validate:"gt=0"         mapstructure:"rate"`
	UID       string        `json:"uid"        validate:"required"     mapstructure:"uid"`
	MinLike   int           `json:"min_like"   validate:"gte=0"        mapstructure:"min_like"`
	PageLimit int           `json:"page_limit" validate:"gte=1"        mapstructure:"page_limit"`
	Delay     time.Duration `json:"delay"      validate:"gte=0"        mapstructure:"delay"`
	Cookie    string        `json:"cookie"                             mapstructure:"cookie"`
	Workers   int           `json:"workers"    validate:"gte=1"        mapstructure:"workers"`
	BatchSize int           `json:"batch_size" validate:"gte=1"        mapstructure:"batch_size"`
}

func LoadBilibiliConfig() *BilibiliConfig {
	viper.SetDefault("BILIBILI_BASE_URL", "https://api.bilibili.com")
	viper.SetDefault("BILIBILI_FEED_URL", "https://api.vc.bilibili.com")
	viper.SetDefault("BILIBILI_RATE", 2.0)
	viper.SetDefault("BILIBILI_UID", "401742377")
	viper.SetDefault("BILIBILI_MIN_LIKE", 100)
	viper.SetDefault("BILIBILI_PAGE_LIMIT", 10)
	viper.SetDefault("BILIBILI_DELAY", 2500*time.Millisecond)
	viper.SetDefault("BILIBILI_WORKERS", 8)
	viper.SetDefault("BILIBILI_BATCH_SIZE", 48)

	return &BilibiliConfig{
		BaseURL:   viper.GetString("BILIBILI_BASE_URL"),
		FeedURL:   viper.GetString("BILIBILI_FEED_URL"),
		Rate:      viper.GetFloat64("BILIBILI_RATE"),
		UID:       viper.GetString("BILIBILI_UID"),
		MinLike:   viper.GetInt("BILIBILI_MIN_LIKE"),
		PageLimit: viper.GetInt("BILIBILI_PAGE_LIMIT"),
		Delay:     viper.GetDuration("BILIBILI_DELAY"),
		Cookie:    viper.GetString("BILIBILI_COOKIE"),
		Workers:   viper.GetInt("BILIBILI_WORKERS"),
		BatchSize: viper.GetInt("BILIBILI_BATCH_SIZE"),
	}
}

// MarshalJSON masks the cookie.
func (c BilibiliConfig) MarshalJSON() ([]byte, error) {
	type Alias BilibiliConfig
	a := Alias(c)
	a.Cookie = utils.Mask(a.Cookie)
	return json.Marshal(a)
}

func (c *BilibiliConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid bilibili configuration: %w", err)
	}
	return nil
}

type BrowserConfig struct {
	Headless bool          `json:"headless"                  mapstructure:"headless"`
	ExecPath string        `json:"exec_path"                 mapstructure:"exec_path"`
	Timeout  time.Duration `json:"timeout"   validate:"gt=0" mapstructure:"timeout"`
	Wait     time.Duration `json:"wait"      validate:"gte=0" mapstructure:"wait"`
}

func LoadBrowserConfig() *BrowserConfig {
	viper.SetDefault("BROWSER_HEADLESS", true)
	viper.SetDefault("BROWSER_TIMEOUT", 10*time.Minute)
	viper.SetDefault("BROWSER_WAIT", 500*time.Millisecond)

	return &BrowserConfig{
		Headless: viper.GetBool("BROWSER_HEADLESS"),
		ExecPath: viper.GetString("BROWSER_EXEC_PATH"),
		Timeout:  viper.GetDuration("BROWSER_TIMEOUT"),
		Wait:     viper.GetDuration("BROWSER_WAIT"),
	}
}

func (c *BrowserConfig) Validate() error {
	return Validator().Struct(c)
}

type OutputConfig struct {
	Dir string `json:"dir" validate:"required" mapstructure:"dir"`
}

func LoadOutputConfig() *OutputConfig {
	return &OutputConfig{
		Dir: utils.DefaultIfZero(viper.GetString("OUTPUT_DIR"), "./output"),
	}
}

func (c *OutputConfig) Validate() error {
	return Validator().Struct(c)
}

type MetricsConfig struct {
	Host string `json:"host"                     mapstructure:"host"`
	Port int    `json:"port" validate:"required" mapstructure:"port"`
}

func LoadMetricsConfig() *MetricsConfig {
	viper.SetDefault("METRICS_PORT", 9090)
	return &MetricsConfig{
		Host: viper.GetString("METRICS_HOST"),
		Port: viper.GetInt("METRICS_PORT"),
	}
}

func (c *MetricsConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *MetricsConfig) Validate() error {
	return Validator().Struct(c)
}

// WorkerConfig configures the JetStream crawl worker.
type WorkerConfig struct {
	Stream           string        `json:"stream"             validate:"required" mapstructure:"stream"`
	Consumer         string        `json:"consumer"           validate:"required" mapstructure:"consumer"`
	Timeout          time.Duration `json:"timeout"            validate:"gt=0"     mapstructure:"timeout"`
	ShutdownWaitTime time.Duration `json:"shutdown_wait_time" validate:"gte=0"    mapstructure:"shutdown_wait_time"`
	HealthCheckHost  string        `json:"health_check_host"                      mapstructure:"health_check_host"`
	HealthCheckPort  int           `json:"health_check_port"  validate:"required" mapstructure:"health_check_port"`
}

func LoadWorkerConfig() *WorkerConfig {
	viper.SetDefault("WORKER_STREAM", "LOREKEEPER")
	viper.SetDefault("WORKER_CONSUMER", "crawl-worker")
	viper.SetDefault("WORKER_TIMEOUT", 2*time.Hour)
	viper.SetDefault("WORKER_SHUTDOWN_WAIT_TIME", 10*time.Second)
	viper.SetDefault("WORKER_HEALTH_CHECK_PORT", 8081)

	return &WorkerConfig{
		Stream:           viper.GetString("WORKER_STREAM"),
		Consumer:         viper.GetString("WORKER_CONSUMER"),
		Timeout:          viper.GetDuration("WORKER_TIMEOUT"),
		ShutdownWaitTime: viper.GetDuration("WORKER_SHUTDOWN_WAIT_TIME"),
		HealthCheckHost:  viper.GetString("WORKER_HEALTH_CHECK_HOST"),
		HealthCheckPort:  viper.GetInt("WORKER_HEALTH_CHECK_PORT"),
	}
}

func (c *WorkerConfig) Validate() error {
	return Validator().Struct(c)
}
