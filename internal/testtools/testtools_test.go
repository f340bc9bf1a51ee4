package testtools_test

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/testtools"
	"github.com/stretchr/testify/require"
)

type reply struct {
	RPIDStr string  `json:"rpid_str"`
	Mid     string  `json:"mid"`
	Like    int64   `json:"like"`
	Replies []reply `json:"replies"`
}

func depth(r reply) int {
	d := 0
	for _, c := range r.Replies {
		d = max(d, depth(c)+1)
	}
	return d
}

func walk(r reply, fn func(reply)) {
	fn(r)
	for _, c := range r.Replies {
		walk(c, fn)
	}
}

func TestRandomReplies(t *testing.T) {
	opts := testtools.ReplyOptions{Depth: 2, Fanout: 3, Users: 5, MaxLike: 200}
	raw, err := testtools.Random{}.Replies(20, opts)
	require.NoError(t, err)
	require.Len(t, raw, 20)

	ids := map[string]struct{}{}
	mids := map[string]struct{}{}
	for _, data := range raw {
		var r reply
		require.NoError(t, json.Unmarshal(data, &r))
		require.NotNil(t, r.Replies, "leaves carry an empty replies list")
		require.LessOrEqual(t, depth(r), opts.Depth)

		walk(r, func(r reply) {
			require.NotContains(t, ids, r.RPIDStr, "reply ids are unique")
			ids[r.RPIDStr] = struct{}{}
			mids[r.Mid] = struct{}{}
			require.GreaterOrEqual(t, r.Like, int64(0))
			require.Less(t, r.Like, opts.MaxLike)
		})
	}
	require.LessOrEqual(t, len(mids), opts.Users)

	tcs := []struct {
		Name string
		N    int
		Opts testtools.ReplyOptions
	}{
		{Name: "no replies", N: 0, Opts: opts},
		{Name: "negative depth", N: 1, Opts: testtools.ReplyOptions{Depth: -1, Users: 1, MaxLike: 1}},
		{Name: "no users", N: 1, Opts: testtools.ReplyOptions{MaxLike: 1}},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := testtools.Random{}.Replies(tc.N, tc.Opts)
			require.Error(t, err)
		})
	}
}

func TestRandomDynamics(t *testing.T) {
	N := 30
	idStartAt := rand.Int64N(1_000_000) + 1
	cards, err := testtools.Random{}.Dynamics(N, "401742377", idStartAt)
	require.NoError(t, err)
	require.Len(t, cards, N)

	var (
		ids   []int64
		stamp = time.Now().Unix() + 1
	)
	for _, data := range cards {
		var card struct {
			Desc struct {
				UID          string `json:"uid"`
				DynamicID    int64  `json:"dynamic_id"`
				DynamicIDStr string `json:"dynamic_id_str"`
				Timestamp    int64  `json:"timestamp"`
			} `json:"desc"`
		}
		require.NoError(t, json.Unmarshal(data, &card))
		require.Equal(t, "401742377", card.Desc.UID)
		require.Equal(t, strconv.FormatInt(card.Desc.DynamicID, 10), card.Desc.DynamicIDStr)
		require.LessOrEqual(t, card.Desc.Timestamp, stamp, "cards are newest first")
		stamp = card.Desc.Timestamp
		ids = append(ids, card.Desc.DynamicID)
	}

	slices.Sort(ids)
	require.Equal(t, idStartAt, ids[0])
	require.Equal(t, idStartAt+int64(N-1), ids[N-1])

	_, err = testtools.Random{}.Dynamics(0, "401742377", idStartAt)
	require.Error(t, err)
}

func TestWord(t *testing.T) {
	w := testtools.Random{}.Word(12, testtools.CharSetHan)
	require.Len(t, []rune(w), 12)
	for _, r := range w {
		require.Contains(t, testtools.CharSetHan, r)
	}
}
