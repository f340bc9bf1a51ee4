package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/fetch"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	calls int
	pages map[string]string
}

func (r *fakeRemote) Get(_ context.Context, rawURL string) ([]byte, error) {
	r.calls++
	page, ok := r.pages[rawURL]
	if !ok {
		return nil, ec.ErrFetchFailed.Clone().WithDetails(rawURL)
	}
	return []byte(page), nil
}

type recorder struct {
	routes []string
}

func (r *recorder) RecordPage(_ context.Context, route string, _ int) error {
	r.routes = append(r.routes, route)
	return nil
}

func TestCacheKey(t *testing.T) {
	tcs := []struct {
		Name   string
		Route  string
		Expect string
	}{
		{Name: "plain", Route: "/ys/角色", Expect: "wiki.biligame.com_ys_角色.html"},
		{Name: "escaped", Route: "/sr/%E8%A7%92%E8%89%B2", Expect: "wiki.biligame.com_sr_%E8%A7%92%E8%89%B2.html"},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Expect, fetch.CacheKey(tc.Route))
		})
	}
}

func TestDiskCache(t *testing.T) {
	ctx := context.Background()
	cache, err := fetch.NewDiskCache(t.TempDir())
	require.NoError(t, err)

	key := fetch.CacheKey("/ys/Amber")
	require.False(t, cache.Has(ctx, key))

	_, err = cache.Get(ctx, key)
	require.ErrorIs(t, err, ec.ErrCacheMiss)

	require.NoError(t, cache.Put(ctx, key, []byte("<html></html>")))
	require.True(t, cache.Has(ctx, key))

	data, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))
}

func TestDiskCacheReadsUnescapedName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache, err := fetch.NewDiskCache(dir)
	require.NoError(t, err)

	key := fetch.CacheKey("/" + url.PathEscape("ys") + "/%E6%B8%A9%E8%BF%AA")
	unescaped, err := url.PathUnescape(key)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, unescaped), []byte("venti"), 0o644))

	data, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "venti", string(data))
	require.True(t, cache.Has(ctx, key))
}

func TestFetcher(t *testing.T) {
	ctx := context.Background()
	cache, err := fetch.NewDiskCache(t.TempDir())
	require.NoError(t, err)

	remote := &fakeRemote{pages: map[string]string{
		"https://wiki.biligame.com/ys/Amber": "amber",
	}}
	rec := &recorder{}

	f := fetch.New(cache, remote, "https://wiki.biligame.com/", fetch.WithRecorder(rec))
	require.Equal(t, "https://wiki.biligame.com/ys/Amber", f.URL("/ys/Amber"))

	page, err := f.Fetch(ctx, "/ys/Amber")
	require.NoError(t, err)
	require.Equal(t, "amber", page)
	require.Equal(t, 1, remote.calls)
	require.Equal(t, []string{"/ys/Amber"}, rec.routes)

	page, err = f.Fetch(ctx, "/ys/Amber")
	require.NoError(t, err)
	require.Equal(t, "amber", page)
	require.Equal(t, 1, remote.calls, "second fetch should be served from cache")

	forced := fetch.New(cache, remote, "https://wiki.biligame.com", fetch.WithForceUpdate(true))
	_, err = forced.Fetch(ctx, "ys/Amber")
	require.NoError(t, err)
	require.Equal(t, 2, remote.calls)

	_, err = f.Refresh(ctx, "/ys/Amber")
	require.NoError(t, err)
	require.Equal(t, 3, remote.calls, "refresh should skip the cache")

	_, err = f.Fetch(ctx, "/ys/Missing")
	require.ErrorIs(t, err, ec.ErrFetchFailed)
}

func TestCollyFetcher(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("<p>recovered</p>"))
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			require.Equal(t, "zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7", r.Header.Get("Accept-Language"))
			_, _ = w.Write([]byte("<p>ok</p>"))
		}
	}))
	defer srv.Close()

	cfg := &global.FetchConfig{
		Timeout:     5 * time.Second,
		Retries:     2,
		HostRate:    100,
		HostBurst:   10,
		Parallelism: 1,
	}
	f := fetch.NewCollyFetcher(cfg)
	ctx := context.Background()

	body, err := f.Get(ctx, srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, "<p>ok</p>", string(body))

	body, err = f.Get(ctx, srv.URL+"/flaky")
	require.NoError(t, err)
	require.Equal(t, "<p>recovered</p>", string(body))
	require.EqualValues(t, 2, hits.Load())

	_, err = f.Get(ctx, srv.URL+"/gone")
	require.ErrorIs(t, err, ec.ErrFetchFailed)
	var se *fetch.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.Status)
}
