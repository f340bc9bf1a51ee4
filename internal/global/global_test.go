package global_test

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfigValidate(t *testing.T) {
	pwd := "39003c8c2224e265ee57a7b5f0ea47bd69"
	file := filepath.Join(t.TempDir(), "pg_password")
	require.NoError(t, os.WriteFile(file, []byte(pwd+"\n"), 0o600))

	tcs := []struct {
		Name         string
		PassValidate bool
		global.PostgresConfig
	}{
		{
			Name:         "password file",
			PassValidate: true,
			PostgresConfig: global.PostgresConfig{
				Host: "localhost", Port: 5432, Username: "postgres",
				PasswordFile: file, Database: "app",
			},
		},
		{
			Name:         "password",
			PassValidate: true,
			PostgresConfig: global.PostgresConfig{
				Host: "localhost", Port: 5432, Username: "postgres",
				Password: pwd, Database: "app",
			},
		},
		{
			Name: "missing password file",
			PostgresConfig: global.PostgresConfig{
				Host: "localhost", Port: 5432, Username: "postgres",
				PasswordFile: filepath.Join(t.TempDir(), "absent"), Database: "app",
			},
		},
		{
			Name: "no password",
			PostgresConfig: global.PostgresConfig{
				Host: "localhost", Port: 5432, Username: "postgres", Database: "app",
			},
		},
		{
			Name: "missing host",
			PostgresConfig: global.PostgresConfig{
				Port: 5432, Username: "postgres", Password: pwd, Database: "app",
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			cfg := tc.PostgresConfig
			err := cfg.Validate()
			if !tc.PassValidate {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, pwd, cfg.Password)

			data, err := json.Marshal(cfg)
			require.NoError(t, err)
			require.NotContains(t, string(data), pwd, "password is masked")
		})
	}
}

func TestPostgresConfigURL(t *testing.T) {
	tcs := []struct {
		Name   string
		Config global.PostgresConfig
		Has    []string
	}{
		{
			Name: "plain",
			Config: global.PostgresConfig{
				Host: "db", Port: 5432, Username: "postgres", Password: "secret", Database: "lore",
			},
			Has: []string{"postgres://postgres:secret@db:5432/lore?", "sslmode=disable", "application_name=lorekeeper"},
		},
		{
			Name: "escaped password",
			Config: global.PostgresConfig{
				Host: "db", Port: 5432, Username: "postgres", Password: "p@ss/w:rd", Database: "lore", SSLMode: true,
			},
			Has: []string{"postgres:p%40ss%2Fw%3Ard@db:5432", "sslmode=require"},
		},
		{
			Name: "schema",
			Config: global.PostgresConfig{
				Host: "db", Port: 5432, Username: "postgres", Password: "secret", Database: "lore", Schema: "wiki",
			},
			Has: []string{"search_path=wiki"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			u := tc.Config.URL()
			for _, s := range tc.Has {
				require.Contains(t, u, s)
			}
			require.NotContains(t, tc.Config.URLString(), ":"+tc.Config.Password+"@")

			parsed, err := url.Parse(u)
			require.NoError(t, err)
			got, _ := parsed.User.Password()
			require.Equal(t, tc.Config.Password, got)
		})
	}
}

func TestStorageConfig(t *testing.T) {
	tcs := []struct {
		Name         string
		PassValidate bool
		Driver       string
		global.StorageConfig
	}{
		{
			"sqlite file",
			true,
			"sqlite",
			global.StorageConfig{Driver: global.DriverSQLite, SQLite: "./lorekeeper.db"},
		},
		{
			"sqlite without path",
			false,
			"sqlite",
			global.StorageConfig{Driver: global.DriverSQLite},
		},
		{
			"postgres without section",
			false,
			"pgx",
			global.StorageConfig{Driver: global.DriverPostgres},
		},
		{
			"unknown driver",
			false,
			"sqlite",
			global.StorageConfig{Driver: "mysql", SQLite: "x"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Driver, tc.DriverName())
			err := tc.Validate()
			if !tc.PassValidate {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.SQLite, tc.DSN())
		})
	}
}

func TestFetchConfigValidate(t *testing.T) {
	valid := global.FetchConfig{
		BaseURL:      "https://wiki.biligame.com",
		CacheDir:     "./cache",
		Cache:        "disk",
		Timeout:      time.Second,
		HostRate:     1,
		HostBurst:    1,
		Parallelism:  1,
		DatasetLimit: 1,
	}
	require.NoError(t, valid.Validate())

	redis := valid
	redis.Cache, redis.CacheDir = "redis", ""
	require.NoError(t, redis.Validate(), "cache dir is only required for the disk cache")

	bad := valid
	bad.Cache = "memcached"
	require.Error(t, bad.Validate())

	bad = valid
	bad.BaseURL = "not a url"
	require.Error(t, bad.Validate())
}

func TestBilibiliConfigMasksCookie(t *testing.T) {
	cfg := global.BilibiliConfig{
		BaseURL: "https://api.bilibili.com",
		UID:     "401742377",
		Cookie:  "SESSDATA=0123456789abcdef",
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NotContains(t, string(data), "0123456789abcdef")
	require.Contains(t, string(data), `"uid":"401742377"`)
}
