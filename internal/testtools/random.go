// Package testtools generates raw bilibili feed payloads for tests.
package testtools

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Random struct{}

// Sexes are the values of member.sex seen in replies.
var Sexes = []string{"男", "女", "保密", ""}

// CharSetHan is the alphabet of generated messages.
var CharSetHan = []rune("的一是不了人我在有他这中大来上个到说们为子和你地出道也时年旅行者派蒙开拓列车")

// Word returns n runes drawn from charset.
func (r Random) Word(n int, charset []rune) string {
	sb := strings.Builder{}
	for range n {
		sb.WriteRune(charset[rand.IntN(len(charset))])
	}
	return sb.String()
}

// ReplyOptions shapes a generated reply forest.
type ReplyOptions struct {
	Depth   int   // levels of nested replies below the top level
	Fanout  int   // maximum children of one reply
	Users   int   // distinct authors
	MaxLike int64 // likes are drawn from [0, MaxLike)
}

func (o ReplyOptions) validate() error {
	if o.Depth < 0 || o.Fanout < 0 {
		return fmt.Errorf("depth and fanout must not be negative")
	}
	if o.Users <= 0 || o.MaxLike <= 0 {
		return fmt.Errorf("users and max like must be greater than 0")
	}
	return nil
}

type replyGen struct {
	opts ReplyOptions
	next int64
}

func (g *replyGen) reply(depth int) map[string]any {
	g.next++
	mid := strconv.Itoa(10000 + rand.IntN(g.opts.Users))
	content := map[string]any{"message": Random{}.Word(rand.IntN(20)+4, CharSetHan)}
	if rand.IntN(5) == 0 {
		content["pictures"] = []map[string]any{
			{"img_src": fmt.Sprintf("https://i0.hdslb.com/bfs/new_dyn/%d.png", g.next)},
		}
	}

	children := []map[string]any{}
	if depth > 0 {
		for range rand.IntN(g.opts.Fanout + 1) {
			children = append(children, g.reply(depth-1))
		}
	}
	return map[string]any{
		"rpid":     g.next,
		"rpid_str": strconv.FormatInt(g.next, 10),
		"mid":      mid,
		"like":     rand.Int64N(g.opts.MaxLike),
		"member":   map[string]any{"mid": mid, "sex": Sexes[rand.IntN(len(Sexes))]},
		"content":  content,
		"replies":  children,
	}
}

// Replies returns n top level replies shaped by opts. Leaf replies carry an
// empty replies list the way the API sends them.
func (r Random) Replies(n int, opts ReplyOptions) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be greater than 0")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	g := &replyGen{opts: opts}
	out := make([]json.RawMessage, 0, n)
	for i := range n {
		data, err := json.Marshal(g.reply(opts.Depth))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reply %d: %w", i, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Dynamic returns a space history card of uid with a decoded card body.
func (r Random) Dynamic(id int64, uid string, ts time.Time) (json.RawMessage, error) {
	card := map[string]any{
		"desc": map[string]any{
			"uid":            uid,
			"type":           2,
			"rid":            id % 1_000_000,
			"view":           rand.IntN(100000),
			"repost":         rand.IntN(100),
			"comment":        rand.IntN(1000),
			"like":           rand.IntN(10000),
			"is_liked":       0,
			"dynamic_id":     id,
			"dynamic_id_str": strconv.FormatInt(id, 10),
			"timestamp":      ts.Unix(),
			"user_profile":   map[string]any{"info": map[string]any{"uid": uid, "uname": r.Word(4, CharSetHan)}},
		},
		"card": map[string]any{
			"item": map[string]any{"description": r.Word(rand.IntN(40)+10, CharSetHan)},
		},
	}
	data, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dynamic %d: %w", id, err)
	}
	return data, nil
}

// Dynamics returns n cards of uid, newest first, with ids starting at
// idStartAt.
func (r Random) Dynamics(n int, uid string, idStartAt int64) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be greater than 0")
	}

	now := time.Now()
	stamps := make([]time.Time, n)
	for i := range stamps {
		stamps[i] = now.Add(-time.Duration(rand.IntN(365*24)) * time.Hour)
	}
	sort.Slice(stamps, func(i, j int) bool {
		return stamps[i].After(stamps[j])
	})

	out := make([]json.RawMessage, 0, n)
	for i, ts := range stamps {
		id := idStartAt + int64(n-1-i)
		card, err := r.Dynamic(id, uid, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, nil
}
