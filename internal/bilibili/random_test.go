package bilibili_test

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/bilibili"
	"github.com/ChiaYuChang/lorekeeper/internal/testtools"
	"github.com/stretchr/testify/require"
)

type rawReply struct {
	Like    int64      `json:"like"`
	Replies []rawReply `json:"replies"`
}

// kept counts the replies at or above minLike whose ancestors are kept too.
func kept(r rawReply, minLike int64) int {
	if r.Like < minLike {
		return 0
	}
	n := 1
	for _, c := range r.Replies {
		n += kept(c, minLike)
	}
	return n
}

func walkReplies(replies []*bilibili.Reply, fn func(*bilibili.Reply)) {
	for _, r := range replies {
		fn(r)
		walkReplies(r.Replies, fn)
	}
}

func TestProcessRandomReplies(t *testing.T) {
	reRole := regexp.MustCompile(`^user_[0-4]$`)
	opts := testtools.ReplyOptions{Depth: 3, Fanout: 3, Users: 5, MaxLike: 200}

	for _, minLike := range []int64{0, 50, 150} {
		raw, err := testtools.Random{}.Replies(40, opts)
		require.NoError(t, err)

		expect := 0
		for _, data := range raw {
			var r rawReply
			require.NoError(t, json.Unmarshal(data, &r))
			expect += kept(r, minLike)
		}

		got := 0
		walkReplies(bilibili.ProcessReplies(raw, minLike), func(r *bilibili.Reply) {
			got++
			require.GreaterOrEqual(t, r.Like, minLike)
			require.Regexp(t, reRole, r.Role)
			require.NotEqual(t, "保密", r.Sex)
		})
		require.Equal(t, expect, got, "min like %d", minLike)
	}
}

func TestMergeRandomDynamics(t *testing.T) {
	cards, err := testtools.Random{}.Dynamics(10, uid, 1000)
	require.NoError(t, err)

	merged := bilibili.MergeDynamics(cards[:6], cards[4:])
	require.Len(t, merged, len(cards))
	for i := range cards {
		require.Equal(t, bilibili.DynamicID(cards[i]), bilibili.DynamicID(merged[i]))
	}

	cleaned, err := bilibili.CleanUpDynamic(cards[0])
	require.NoError(t, err)
	require.NotContains(t, string(cleaned), "user_profile")
	require.NotContains(t, string(cleaned), `"is_liked"`)
}
