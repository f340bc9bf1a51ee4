package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config-path", t.TempDir()))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSchema(t *testing.T) {
	tcs := []struct {
		Name   string
		Record string
		Has    []string
		Err    bool
	}{
		{Name: "crawl job", Record: "crawl_job", Has: []string{`"run_id"`, `"game"`, `"datasets"`}},
		{Name: "conversation", Record: "conversation", Has: []string{`"dynamic"`, `"comments"`}},
		{Name: "character", Record: "character", Has: []string{`"properties"`}},
		{Name: "unknown", Record: "article", Err: true},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			out, err := execute(t, "schema", tc.Record)
			if tc.Err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, json.Valid([]byte(out)), out)
			for _, s := range tc.Has {
				require.Contains(t, out, s)
			}
		})
	}
}

func TestCrawlList(t *testing.T) {
	out, err := execute(t, "crawl", "genshin", "角色一览", "黑话", "--list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "角色一览\t"), lines[0])
	require.Contains(t, lines[0], filepath.Join("genshin", "角色图鉴", "角色一览.json"))

	_, err = execute(t, "crawl", "genshin", "不存在", "--list")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lorekeeper.json")
	_, err := execute(t, "config", "init", "--profile", "metrics", "--type", "json", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	require.EqualValues(t, 9090, cfg["metrics_port"])
	require.NotContains(t, cfg, "nats_host")

	_, err = execute(t, "config", "init", "--profile", "metrics", "--type", "json", "--out", path)
	require.Error(t, err, "existing files are kept without --overwrite")

	_, err = execute(t, "config", "init", "--profile", "api")
	require.Error(t, err)
}
