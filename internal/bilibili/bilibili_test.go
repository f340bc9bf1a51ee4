package bilibili_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/bilibili"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/storage"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const uid = "401742377"

var historyPages = map[string]string{
	"0": `{"code":0,"data":{"has_more":1,"next_offset":2,"cards":[
		{"desc":{"dynamic_id":3,"timestamp":300,"rid":30,"bvid":"","status":0,"like":"0","user_profile":{"info":{"uname":"原神"}}},
		 "card":"{\"item\":{\"description\":\"hi\"}}"},
		{"desc":{"dynamic_id":2,"timestamp":200,"rid":20},"card":"{}"}]}}`,
	"2": `{"code":0,"data":{"has_more":0,"next_offset":0,"cards":[
		{"desc":{"dynamic_id":1,"timestamp":100,"rid":10,"bvid":"BV1"},"card":"{\"aid\":77}"}]}}`,
}

const (
	replyLiked = `{"rpid":11,"mid":100,"like":150,"content":{"message":"回复 @旅行者 :好耶"},"member":{"sex":"女"},
		"replies":[
			{"rpid":12,"mid":101,"like":120,"content":{"message":"同意"},"member":{"sex":"保密"},"replies":null},
			{"rpid":13,"mid":102,"like":5,"content":{"message":"low"},"member":{"sex":"男"},"replies":null}]}`
	replyEdge  = `{"rpid":14,"mid":101,"like":100,"content":{"message":"刚好","pictures":[{"img_src":"http://i0.hdslb.com/a.png"}]},"member":{"sex":"男"},"replies":[]}`
	replyFirst = `{"rpid":21,"mid":200,"like":500,"content":{"message":"第一"},"replies":null}`
	replyLow   = `{"rpid":22,"mid":201,"like":1,"content":{"message":"低"},"replies":null}`
)

func replies(size, count int, rs ...string) string {
	return fmt.Sprintf(`{"code":0,"data":{"page":{"num":1,"size":%d,"count":%d},"replies":[%s]}}`,
		size, count, strings.Join(rs, ","))
}

type feed struct {
	calls  atomic.Int32
	cookie atomic.Value
}

func (f *feed) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/dynamic_svr/v1/dynamic_svr/space_history", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.cookie.Store(r.Header.Get("Cookie"))
		page, ok := historyPages[r.URL.Query().Get("offset_dynamic_id")]
		if !ok || r.URL.Query().Get("host_uid") != uid {
			http.Error(w, "unknown page", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/x/v2/reply", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		q := r.URL.Query()
		if q.Get("sort") != "2" {
			http.Error(w, "unsorted", http.StatusBadRequest)
			return
		}
		switch q.Get("type") + "/" + q.Get("oid") + "/" + q.Get("pn") {
		case "17/3/1":
			fmt.Fprint(w, `{"code":-404,"message":"啥都木有"}`)
		case "11/30/1":
			fmt.Fprint(w, replies(20, 2, replyLiked, replyEdge))
		case "17/2/1":
			fmt.Fprint(w, replies(20, 25, replyFirst))
		case "17/2/2":
			fmt.Fprint(w, replies(20, 25, replyLow))
		case "1/77/1":
			fmt.Fprint(w, replies(0, 0))
		default:
			http.Error(w, "unexpected request "+r.URL.RawQuery, http.StatusNotFound)
		}
	})
	return mux
}

func newStorage(t *testing.T) *storage.Storage {
	t.Helper()
	db, err := global.OpenDatabase(&global.StorageConfig{Driver: global.DriverSQLite, SQLite: ":memory:"})
	require.NoError(t, err)
	s := storage.New(db, global.DriverSQLite)
	require.NoError(t, s.MigrateUp())
	t.Cleanup(func() { _ = db.Close() })
	return s
}

func newConfig(url string) *global.BilibiliConfig {
	return &global.BilibiliConfig{
		BaseURL:   url,
		FeedURL:   url,
		UID:       uid,
		MinLike:   100,
		PageLimit: 10,
		Cookie:    "SESSDATA=abc",
		Workers:   2,
		BatchSize: 2,
	}
}

type lines struct {
	docs []any
}

func (l *lines) Encode(v any) error {
	l.docs = append(l.docs, v)
	return nil
}

func TestCollector(t *testing.T) {
	f := &feed{}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	ctx := context.Background()
	cfg := newConfig(srv.URL)
	store := newStorage(t)
	c := bilibili.NewCollector(bilibili.NewClient(cfg), store, cfg)

	fresh, err := c.CollectDynamics(ctx, uid)
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	require.Equal(t, []string{"3", "2", "1"}, []string{fresh[0].ID, fresh[1].ID, fresh[2].ID})
	require.Equal(t, "hi", gjson.GetBytes(fresh[0].Data, "card.item.description").String())
	require.EqualValues(t, 77, gjson.GetBytes(fresh[2].Data, "card.aid").Int())
	require.Equal(t, "SESSDATA=abc", f.cookie.Load())

	again, err := c.CollectDynamics(ctx, uid)
	require.NoError(t, err)
	require.Empty(t, again, "the newest dynamic is already stored")

	n, err := c.CollectComments(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	for id, want := range map[string]int{"3": 2, "2": 2, "1": 0} {
		got, err := store.Comments().Count(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got, "replies of %s", id)
	}
	pending, err := store.Dynamics().PendingComments(ctx, uid)
	require.NoError(t, err)
	require.Empty(t, pending)

	written, err := c.BuildOutputs(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, 3, written)

	out := &lines{}
	count, err := c.ExportOutputs(ctx, out)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Len(t, out.docs, 3)

	third := out.docs[2].(bilibili.Conversation)
	require.Equal(t, "3", gjson.GetBytes(third.Dynamic, "desc.dynamic_id").String())
	for _, dropped := range []string{"desc.user_profile", "desc.status", "desc.like"} {
		require.False(t, gjson.GetBytes(third.Dynamic, dropped).Exists(), dropped)
	}
	require.True(t, gjson.GetBytes(third.Dynamic, "desc.bvid").Exists())
	require.Len(t, third.Comments, 1)
	require.Equal(t, "好耶", third.Comments[0].Content)
	require.Len(t, third.Comments[0].Replies, 1)
}

func TestProcessReplies(t *testing.T) {
	got := bilibili.ProcessReplies([]json.RawMessage{
		json.RawMessage(replyLiked),
		json.RawMessage(replyEdge),
		json.RawMessage(`{"rpid":99,"mid":300,"like":1000}`),
	}, 100)

	require.Equal(t, []*bilibili.Reply{
		{
			Content: "好耶",
			Role:    "user_0",
			Like:    150,
			Sex:     "女",
			Replies: []*bilibili.Reply{{Content: "同意", Role: "user_1", Like: 120}},
		},
		{
			Content: "刚好",
			Role:    "user_1",
			Like:    100,
			Sex:     "男",
			Image:   "http://i0.hdslb.com/a.png",
		},
	}, got)

	require.Equal(t, []*bilibili.Reply{}, bilibili.ProcessReplies(nil, 0))
}

func TestCleanUpComments(t *testing.T) {
	replies := []*bilibili.Reply{
		{Content: "a", Like: 101, Replies: []*bilibili.Reply{{Content: "b", Like: 100}, {Content: "c", Like: 99}}},
		{Content: "d", Like: 100},
		nil,
	}
	got := bilibili.CleanUpComments(replies, 100)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Content)
	require.Equal(t, []*bilibili.Reply{{Content: "b", Like: 100}}, got[0].Replies)
	require.Len(t, replies[0].Replies, 2, "input is left untouched")
}

func TestCleanUpDynamic(t *testing.T) {
	got, err := bilibili.CleanUpDynamic(json.RawMessage(
		`{"desc":{"uid":0,"type":8,"rid":"0","user_profile":{},"bvid":"BV1"},"card":{"aid":0}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"desc":{"type":8,"bvid":"BV1"},"card":{"aid":0}}`, string(got))
	require.Less(t, strings.Index(string(got), "desc"), strings.Index(string(got), "card"), "key order is kept")

	_, err = bilibili.CleanUpDynamic(json.RawMessage(`[1]`))
	require.ErrorIs(t, err, ec.ErrUnmarshalFailed)
}

func card(id int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"desc":{"dynamic_id":%d}}`, id))
}

func TestMergeDynamics(t *testing.T) {
	tcs := []struct {
		Name     string
		Newer    []json.RawMessage
		Existing []json.RawMessage
		Expect   []string
	}{
		{Name: "new first", Newer: []json.RawMessage{card(4), card(3)}, Existing: []json.RawMessage{card(2), card(1)}, Expect: []string{"4", "3", "2", "1"}},
		{Name: "overlap", Newer: []json.RawMessage{card(3), card(2)}, Existing: []json.RawMessage{card(2), card(1)}, Expect: []string{"3", "2", "1"}},
		{Name: "duplicates in newer", Newer: []json.RawMessage{card(3), card(3)}, Expect: []string{"3"}},
		{Name: "nothing new", Existing: []json.RawMessage{card(1)}, Expect: []string{"1"}},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			var ids []string
			for _, d := range bilibili.MergeDynamics(tc.Newer, tc.Existing) {
				ids = append(ids, bilibili.DynamicID(d))
			}
			require.Equal(t, tc.Expect, ids)
		})
	}
}

func TestMergeJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "dynamics.jsonl")

	before, after, err := bilibili.MergeJSONL(path, []json.RawMessage{card(2), card(1)})
	require.NoError(t, err)
	require.Equal(t, 0, before)
	require.Equal(t, 2, after)

	before, after, err = bilibili.MergeJSONL(path, []json.RawMessage{card(3), card(2)})
	require.NoError(t, err)
	require.Equal(t, 2, before)
	require.Equal(t, 3, after)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "3", bilibili.DynamicID([]byte(lines[0])))

	require.NoError(t, os.WriteFile(path, []byte("{broken\n"), 0o644))
	_, _, err = bilibili.MergeJSONL(path, nil)
	require.ErrorIs(t, err, ec.ErrUnmarshalFailed)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("oid") {
		case "500":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "bad":
			fmt.Fprint(w, "<html>")
		default:
			fmt.Fprint(w, `{"code":12002,"message":"评论区已关闭"}`)
		}
	}))
	defer srv.Close()

	client := bilibili.NewClient(newConfig(srv.URL))
	tcs := []struct {
		Name   string
		OID    string
		Expect error
	}{
		{Name: "http status", OID: "500", Expect: ec.ErrRemoteAPI},
		{Name: "not json", OID: "bad", Expect: ec.ErrUnmarshalFailed},
		{Name: "api code", OID: "1", Expect: ec.ErrRemoteAPI},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := client.Comments(context.Background(), tc.OID, bilibili.TypeDynamic, 1)
			require.ErrorIs(t, err, tc.Expect)
		})
	}
}
