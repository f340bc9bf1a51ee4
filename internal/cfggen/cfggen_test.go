package cfggen_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/cfggen"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func source(t *testing.T, env string) *viper.Viper {
	t.Helper()
	src := viper.New()
	src.SetConfigType("env")
	require.NoError(t, src.ReadConfig(strings.NewReader(env)))
	return src
}

func TestGenerate(t *testing.T) {
	src := source(t, "BILIBILI_UID=1636034895\nBILIBILI_MIN_LIKE=50\nUNRELATED=1\n")

	gen := cfggen.NewCfgGen(src)
	require.NoError(t, gen.Generate("bilibili"))
	require.Equal(t, "1636034895", gen.Get("BILIBILI_UID"))
	require.EqualValues(t, "50", gen.Get("BILIBILI_MIN_LIKE"))
	require.Equal(t, "https://api.bilibili.com", gen.Get("BILIBILI_BASE_URL"))
	require.Nil(t, gen.Get("UNRELATED"))
	require.Nil(t, gen.Get("NATS_HOST"), "nats is not part of the bilibili profile")

	var buf bytes.Buffer
	require.NoError(t, gen.WriteTo(&buf, "json"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "1636034895", out["bilibili_uid"])
}

func TestGenerateProfiles(t *testing.T) {
	tcs := []struct {
		Name     string
		Profiles []string
		Has      []string
		Err      bool
	}{
		{Name: "worker", Profiles: []string{"worker"}, Has: []string{"NATS_HOST", "WORKER_STREAM", "FETCH_BASE_URL"}},
		{Name: "all", Profiles: []string{"all"}, Has: []string{"METRICS_PORT", "BILIBILI_UID", "REDIS_HOST"}},
		{Name: "unknown", Profiles: []string{"api"}, Err: true},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			gen := cfggen.NewCfgGen(nil)
			err := gen.Generate(tc.Profiles...)
			if tc.Err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, key := range tc.Has {
				require.NotNil(t, gen.Get(key), key)
			}
		})
	}
}

func TestProfileNames(t *testing.T) {
	require.Equal(t, []string{"bilibili", "crawl", "metrics", "worker"}, cfggen.ProfileNames())
}
