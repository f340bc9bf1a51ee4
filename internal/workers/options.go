package workers

import (
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
)

// Options holds the tunables of a Runner.
type Options struct {
	Timeout          time.Duration
	NakDelay         time.Duration
	FetchWait        time.Duration
	ShutdownWaitTime time.Duration
	HealthCheckHost  string
	HealthCheckPort  int
}

func defaultOptions() Options {
	return Options{
		Timeout:          30 * time.Second,
		NakDelay:         10 * time.Second,
		FetchWait:        5 * time.Second,
		ShutdownWaitTime: 10 * time.Second,
		HealthCheckPort:  8080,
	}
}

type Option func(*Options) error

// WithTimeout bounds the time a Handle call may take.
func WithTimeout(t time.Duration) Option {
	return func(o *Options) error {
		o.Timeout = t
		return nil
	}
}

func WithNakDelay(d time.Duration) Option {
	return func(o *Options) error {
		o.NakDelay = d
		return nil
	}
}

func WithHealthCheckPort(port int) Option {
	return func(o *Options) error {
		o.HealthCheckPort = port
		return nil
	}
}

func WithHealthCheckHost(host string) Option {
	return func(o *Options) error {
		o.HealthCheckHost = host
		return nil
	}
}

// FromConfig applies a loaded WorkerConfig.
func FromConfig(cfg *global.WorkerConfig) Option {
	return func(o *Options) error {
		o.Timeout = cfg.Timeout
		o.ShutdownWaitTime = cfg.ShutdownWaitTime
		o.HealthCheckHost = cfg.HealthCheckHost
		o.HealthCheckPort = cfg.HealthCheckPort
		return nil
	}
}
