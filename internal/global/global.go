// Package global provides centralized initialization and configuration for core services.
package global

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

// Singleton is a generic type that holds a single instance of a type T.
type Singleton[T any] struct {
	instance *T
	once     sync.Once
	errs     []error
}

// NewSingleton creates a new instance of Singleton.
func NewSingleton[T any]() *Singleton[T] {
	return &Singleton[T]{
		instance: new(T),
		once:     sync.Once{},
		errs:     nil,
	}
}

// Errors returns a slice of errors encountered during initialization.
func (s *Singleton[T]) Errors() []error {
	return s.errs
}

func (s *Singleton[T]) fail(err error, msg string) {
	s.errs = append(s.errs, err)
	Logger.Error().Err(err).Msg(msg)
}

func (s *Singleton[T]) Panic(msg string) {
	sb := strings.Builder{}
	for _, err := range s.errs {
		sb.WriteString(fmt.Sprintf(" - %s\n", err))
	}
	panic(fmt.Errorf("%s:\n%s", msg, sb.String()))
}

func (s *Singleton[T]) CleanUp() {
	s.instance = nil
	s.errs = nil
}

func (s *Singleton[T]) Reset() {
	s.once = sync.Once{}
	s.CleanUp()
}

// Logger is the global zerolog logger instance.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// mode indicates the current running mode (e.g., "dev", "prod").
var mode string

// SetMode sets the current running mode (e.g., "dev", "prod").
func SetMode(m string) {
	mode = m
}

// Mode returns the current running mode (e.g., "dev", "prod").
func Mode() string {
	return utils.DefaultIfZero(mode, "dev")
}

// configuration holds the application configuration.
type configuration struct {
	Fetch    *FetchConfig
	Redis    *RedisConfig
	Storage  *StorageConfig
	NATS     *NATSConfig
	Otel     *OtelConfig
	Bilibili *BilibiliConfig
	Browser  *BrowserConfig
	Output   *OutputConfig
	Metrics  *MetricsConfig
	Worker   *WorkerConfig
}

var config = NewSingleton[configuration]()

// Config returns the singleton instance of the configuration. Every section
// is read from viper and validated; any failure panics.
func Config() *configuration {
	config.once.Do(func() {
		c := &configuration{
			Fetch:    LoadFetchConfig(),
			Redis:    LoadRedisConfig(),
			Storage:  LoadStorageConfig(),
			NATS:     LoadNATSConfig(),
			Otel:     LoadOtelConfig(),
			Bilibili: LoadBilibiliConfig(),
			Browser:  LoadBrowserConfig(),
			Output:   LoadOutputConfig(),
			Metrics:  LoadMetricsConfig(),
			Worker:   LoadWorkerConfig(),
		}

		sections := []struct {
			name string
			v    interface{ Validate() error }
		}{
			{"fetch", c.Fetch},
			{"redis", c.Redis},
			{"storage", c.Storage},
			{"nats", c.NATS},
			{"otel", c.Otel},
			{"bilibili", c.Bilibili},
			{"browser", c.Browser},
			{"output", c.Output},
			{"metrics", c.Metrics},
			{"worker", c.Worker},
		}
		for _, s := range sections {
			if err := s.v.Validate(); err != nil {
				config.fail(err, fmt.Sprintf("%s configuration validation failed", s.name))
				continue
			}
			Logger.Debug().Str("section", s.name).Msg("configuration loaded")
		}
		config.instance = c
	})

	if len(config.errs) > 0 {
		config.Panic("configuration errors")
	}
	return config.instance
}

// Validate singleton instance
var validate = NewSingleton[validator.Validate]()

// Validator returns the singleton instance of the validator.
func Validator() *validator.Validate {
	validate.once.Do(func() {
		validate.instance = validator.New(validator.WithRequiredStructEnabled())
	})

	if len(validate.errs) > 0 {
		validate.Panic("validator errors")
	}
	return validate.instance
}

// natssrv is a singleton for the NATS connection.
var natssrv = NewSingleton[nats.Conn]()

// NATS returns the singleton instance of the NATS connection.
func NATS() *nats.Conn {
	natssrv.once.Do(func() {
		cfg := Config().NATS
		server, err := cfg.Connect()
		if err != nil {
			natssrv.fail(fmt.Errorf("failed to connect to NATS server: %w", err),
				"Failed to connect to NATS server")
			return
		}

		for retry := 0; server.Status() != nats.CONNECTED && retry < 5; retry++ {
			wt := (1 << retry) * time.Second
			Logger.Warn().
				Int("retry", retry).
				Dur("wait_time", wt).
				Msg("Waiting for NATS connection...")
			time.Sleep(wt)
		}

		if server.Status() != nats.CONNECTED {
			natssrv.fail(errors.New("failed to connect to NATS server after 5 attempts"),
				"NATS server unreachable")
			return
		}
		Logger.Info().
			Str("url", cfg.URL()).
			Str("username", cfg.Username).
			Str("password", utils.Mask(cfg.Password)).
			Msg("Connected to NATS server")
		natssrv.instance = server
	})

	if len(natssrv.errs) > 0 {
		natssrv.Panic("NATS connection errors")
	}
	return natssrv.instance
}

// rdb is a singleton for the redis client used by the page cache.
var rdb = NewSingleton[redis.Client]()

// Redis returns the singleton redis client, pinging it once.
func Redis() *redis.Client {
	rdb.once.Do(func() {
		cfg := Config().Redis
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			rdb.fail(fmt.Errorf("failed to ping redis: %w", err), "Failed to connect to redis")
			return
		}
		Logger.Info().
			Str("addr", cfg.Addr()).
			Int("db", cfg.DB).
			Msg("Connected to redis")
		rdb.instance = client
	})

	if len(rdb.errs) > 0 {
		rdb.Panic("redis connection errors")
	}
	return rdb.instance
}

// db is a singleton for the relational store.
var db = NewSingleton[sql.DB]()

// Database returns the singleton *sql.DB selected by the storage section.
func Database() *sql.DB {
	db.once.Do(func() {
		cfg := Config().Storage
		conn, err := OpenDatabase(cfg)
		if err != nil {
			db.fail(err, "Failed to open database")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for retry := 0; conn.PingContext(ctx) != nil && retry < 5; retry++ {
			wt := (1 << retry) * time.Second
			Logger.Warn().
				Dur("wait_time", wt).
				Msg("Waiting for database connection...")
			time.Sleep(wt)
		}
		if err := conn.PingContext(ctx); err != nil {
			db.fail(fmt.Errorf("failed to ping database: %w", err), "Database unreachable")
			return
		}

		Logger.Info().
			Str("driver", cfg.Driver).
			Msg("Connected to database")
		db.instance = conn
	})

	if len(db.errs) > 0 {
		db.Panic("database errors")
	}
	return db.instance
}

// OpenDatabase opens the database described by cfg without pinging it.
func OpenDatabase(cfg *StorageConfig) (*sql.DB, error) {
	conn, err := sql.Open(cfg.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// sqlite allows a single writer.
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}

// ReadDotEnvFile reads a dotfile configuration using Viper.
func ReadDotEnvFile(fname, ftype string, fpath []string) error {
	viper.SetConfigName(fname)
	viper.SetConfigType(ftype)
	for _, p := range fpath {
		viper.AddConfigPath(p)
	}
	return viper.ReadInConfig()
}

// LoadConfigs loads configuration from file and sets up the logger and mode.
// Environment variables override file values.
func LoadConfigs(fname, ftype string, fpath []string) error {
	viper.AutomaticEnv()
	if err := ReadDotEnvFile(fname, ftype, fpath); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			Logger.Error().Err(err).Msg("Failed to read configuration file")
			return fmt.Errorf("failed to read configuration file: %w", err)
		}
		Logger.Warn().Str("name", fname).Msg("configuration file not found, using environment")
	}
	SetMode(utils.DefaultIfZero(viper.GetString("MODE"), Mode()))
	Logger = InitBaseLogger()
	return nil
}

// InitBaseLogger initializes the base logger for the application.
func InitBaseLogger() zerolog.Logger {
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
	logger = logger.Level(utils.IfElse(
		Mode() == "dev",
		zerolog.DebugLevel,
		zerolog.InfoLevel))

	logger.Debug().
		Str("mode", Mode()).
		Str("log_level", logger.GetLevel().String()).
		Msg("Base Logger Initialized")
	return logger
}

func CleanUp() {
	defer db.CleanUp()
	if db.instance != nil {
		_ = db.instance.Close()
		Logger.Info().Msg("Database closed")
	}

	defer rdb.CleanUp()
	if rdb.instance != nil {
		_ = rdb.instance.Close()
		Logger.Info().Msg("Redis client closed")
	}

	defer natssrv.CleanUp()
	if natssrv.instance != nil {
		natssrv.instance.Close()
		Logger.Info().Msg("NATS connection closed")
	}

	defer validate.CleanUp()
	defer config.CleanUp()
}

func Reset() {
	Logger.Warn().Msg("Resetting global state")
	db.Reset()
	rdb.Reset()
	natssrv.Reset()
	validate.Reset()
	config.Reset()
}
