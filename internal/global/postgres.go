package global

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/spf13/viper"
)

// PostgresConfig selects the PostgreSQL database used when STORAGE_DRIVER is
// "postgres". Password may come from PasswordFile; Schema sets the search
// path of every connection.
type PostgresConfig struct {
	Host         string `json:"host"          validate:"required"                      mapstructure:"host"`
	Port         int    `json:"port"          validate:"required"                      mapstructure:"port"`
	Username     string `json:"username"      validate:"required"                      mapstructure:"username"`
	Password     string `json:"password"      validate:"required_without=PasswordFile" mapstructure:"password"`
	PasswordFile string `json:"password_file" validate:"required_without=Password"     mapstructure:"password_file"`
	Database     string `json:"database"      validate:"required"                      mapstructure:"database"`
	Schema       string `json:"schema"                                                 mapstructure:"schema"`
	SSLMode      bool   `json:"sslmode"                                                mapstructure:"sslmode"`
}

func LoadPostgresConfig() *PostgresConfig {
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_APP_DB", "lorekeeper")
	viper.SetDefault("POSTGRES_SCHEMA", "public")
	viper.SetDefault("POSTGRES_SSLMODE", false)

	cfx := &PostgresConfig{
		Host:         viper.GetString("POSTGRES_HOST"),
		Port:         viper.GetInt("POSTGRES_PORT"),
		Username:     viper.GetString("POSTGRES_USER"),
		Password:     viper.GetString("POSTGRES_PASSWORD"),
		PasswordFile: viper.GetString("POSTGRES_PASSWORD_FILE"),
		Database:     viper.GetString("POSTGRES_APP_DB"),
		Schema:       viper.GetString("POSTGRES_SCHEMA"),
		SSLMode:      viper.GetBool("POSTGRES_SSLMODE"),
	}

	if err := cfx.ReadPasswordFile(); err != nil {
		Logger.Warn().Err(err).Msg("failed to read password file")
		return nil
	}
	return cfx
}

// MarshalJSON masks the password.
func (c PostgresConfig) MarshalJSON() ([]byte, error) {
	type Alias PostgresConfig
	a := Alias(c)
	a.Password = utils.Mask(a.Password)
	return json.Marshal(a)
}

// ReadPasswordFile replaces Password with the trimmed content of
// PasswordFile. It does nothing when PasswordFile is empty.
func (c *PostgresConfig) ReadPasswordFile() error {
	if c.PasswordFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.PasswordFile)
	if err != nil {
		return fmt.Errorf("failed to read password file %s: %w", c.PasswordFile, err)
	}

	password := strings.TrimSpace(string(data))
	if c.Password != "" && c.Password != password {
		Logger.Warn().
			Str("password", utils.Mask(c.Password)).
			Str("password_from_file", utils.Mask(password)).
			Msg("password provided in config will be replaced by password from file")
	}
	c.Password = password
	return nil
}

func (c *PostgresConfig) dsn(password string) *url.URL {
	q := url.Values{}
	q.Set("sslmode", utils.IfElse(c.SSLMode, "require", "disable"))
	q.Set("application_name", "lorekeeper")
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
}

// URL returns the connection string used by the pgx driver and the
// migrations.
func (c *PostgresConfig) URL() string {
	return c.dsn(c.Password).String()
}

// URLString is URL with the password masked, for logs.
func (c *PostgresConfig) URLString() string {
	return c.dsn(utils.Mask(c.Password)).String()
}

func (c PostgresConfig) String() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("PostgresConfig{Host: %s, Port: %d, Username: %s, Database: %s, SSLMode: %t}",
			c.Host, c.Port, c.Username, c.Database, c.SSLMode)
	}
	return string(b)
}

// Validate checks the required fields, reading PasswordFile when no
// password is set yet.
func (c *PostgresConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid Postgres configuration: %w", err)
	}

	if c.Password == "" {
		if err := c.ReadPasswordFile(); err != nil {
			return err
		}
	}
	if c.Password == "" {
		return fmt.Errorf("password must be provided either directly or via a password file")
	}

	if len(c.Password) < 8 {
		Logger.Warn().
			Int("password_length", len(c.Password)).
			Msg("password is less than 8 characters, consider using a stronger password")
	}
	if !c.SSLMode {
		Logger.Warn().
			Str("host", c.Host).
			Msg("ssl mode is disabled, enable it when the database is reached over an outside network")
	}
	return nil
}
