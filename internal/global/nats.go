package global

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
)

const NATSLogSubject = "lorekeeper.logs"

type NATSConfig struct {
	Host     string `json:"host"     validate:"required" mapstructure:"host"`
	Port     int    `json:"port"     validate:"required" mapstructure:"port"`
	Username string `json:"username"                     mapstructure:"username"`
	Password string `json:"password"                     mapstructure:"password"`
}

func LoadNATSConfig() *NATSConfig {
	viper.SetDefault("NATS_HOST", "localhost")
	viper.SetDefault("NATS_PORT", 4222)

	return &NATSConfig{
		Host:     viper.GetString("NATS_HOST"),
		Port:     viper.GetInt("NATS_PORT"),
		Username: viper.GetString("NATS_USER"),
		Password: viper.GetString("NATS_PASSWORD"),
	}
}

func (c *NATSConfig) URL() string {
	return "nats://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Connect dials the server with reconnects enabled.
func (c *NATSConfig) Connect() (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("lorekeeper"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				Logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			Logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if c.Username != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return nats.Connect(c.URL(), opts...)
}

func (c *NATSConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid NATS configuration: %w", err)
	}
	return nil
}

var reLogLevel = regexp.MustCompile(`"level"\s*:\s*"(\w+)"`)

// NatsLogWriter publishes JSON log lines to NATSLogSubject.<level>.
type NatsLogWriter struct {
	Conn *nats.Conn
}

func (w *NatsLogWriter) extractLevel(s string) string {
	matches := reLogLevel.FindStringSubmatch(s)
	if len(matches) < 2 {
		return "unknown"
	}
	return matches[1]
}

func (w *NatsLogWriter) Write(p []byte) (n int, err error) {
	if w.Conn == nil {
		return 0, nats.ErrConnectionClosed
	}

	level := w.extractLevel(string(p))
	if err := w.Conn.Publish(fmt.Sprintf("%s.%s", NATSLogSubject, level), p); err != nil {
		return 0, err
	}
	return len(p), nil
}
