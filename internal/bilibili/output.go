package bilibili

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/ChiaYuChang/lorekeeper/internal/storage"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reply is a processed reply. Authors are replaced by a role that is stable
// within one dynamic.
type Reply struct {
	Content string   `json:"content"`
	Role    string   `json:"role"`
	Like    int64    `json:"like"`
	Sex     string   `json:"sex,omitempty"`
	Replies []*Reply `json:"replies,omitempty"`
	Image   string   `json:"image,omitempty"`
}

const hiddenSex = "保密"

var reReplyTo = regexp.MustCompile(`回复 @[^:]+ :`)

type roles map[string]string

func (r roles) of(mid string) string {
	if role, ok := r[mid]; ok {
		return role
	}
	role := "user_" + strconv.Itoa(len(r))
	r[mid] = role
	return role
}

// ProcessReplies turns the raw replies of one dynamic into reply trees.
// Replies with fewer than minLike likes are dropped with their children.
func ProcessReplies(raw []json.RawMessage, minLike int64) []*Reply {
	mask := roles{}
	out := []*Reply{}
	for _, r := range raw {
		if reply := processReply(gjson.ParseBytes(r), minLike, mask); reply != nil {
			out = append(out, reply)
		}
	}
	return out
}

func processReply(r gjson.Result, minLike int64, mask roles) *Reply {
	if !r.IsObject() || !r.Get("replies").Exists() {
		return nil
	}
	role := mask.of(r.Get("mid").String())
	like := r.Get("like").Int()
	if like < minLike {
		return nil
	}

	reply := &Reply{
		Content: reReplyTo.ReplaceAllString(r.Get("content.message").String(), ""),
		Role:    role,
		Like:    like,
		Image:   r.Get("content.pictures.0.img_src").String(),
	}
	if sex := r.Get("member.sex").String(); sex != "" && sex != hiddenSex {
		reply.Sex = sex
	}
	for _, child := range r.Get("replies").Array() {
		if c := processReply(child, minLike, mask); c != nil {
			reply.Replies = append(reply.Replies, c)
		}
	}
	return reply
}

// CleanUpDynamic drops desc.user_profile and every desc field whose value
// is zero.
func CleanUpDynamic(raw json.RawMessage) (json.RawMessage, error) {
	dyn := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, dyn); err != nil {
		return nil, ec.ErrUnmarshalFailed.Clone().WithDetails("dynamic").Warp(err)
	}
	if d, ok := dyn.Get("desc"); ok {
		desc := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(d, desc); err != nil {
			return nil, ec.ErrUnmarshalFailed.Clone().WithDetails("desc").Warp(err)
		}
		desc.Delete("user_profile")
		for p := desc.Oldest(); p != nil; {
			next := p.Next()
			if v := string(p.Value); v == "0" || v == `"0"` {
				desc.Delete(p.Key)
			}
			p = next
		}
		data, err := json.Marshal(desc)
		if err != nil {
			return nil, ec.ErrMarshalFailed.Clone().WithDetails("desc").Warp(err)
		}
		dyn.Set("desc", data)
	}

	out, err := json.Marshal(dyn)
	if err != nil {
		return nil, ec.ErrMarshalFailed.Clone().WithDetails("dynamic").Warp(err)
	}
	return out, nil
}

// CleanUpComments keeps top level replies with more than minLike likes and
// their direct replies with at least minLike.
func CleanUpComments(replies []*Reply, minLike int64) []*Reply {
	out := []*Reply{}
	for _, r := range replies {
		if r == nil || r.Like <= minLike {
			continue
		}
		kept := *r
		kept.Replies = nil
		for _, child := range r.Replies {
			if child != nil && child.Like >= minLike {
				kept.Replies = append(kept.Replies, child)
			}
		}
		out = append(out, &kept)
	}
	return out
}

// Conversation is one exported line.
type Conversation struct {
	Dynamic  json.RawMessage `json:"dynamic"`
	Comments []*Reply        `json:"comments"`
}

// Encoder is satisfied by sink.JSONLWriter.
type Encoder interface {
	Encode(v any) error
}

// ExportOutputs writes every stored output to enc as a Conversation and
// returns the number of replies written.
func (c *Collector) ExportOutputs(ctx context.Context, enc Encoder) (int, error) {
	outs, err := c.store.Outputs().List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, o := range outs {
		conv, err := conversation(o, int64(c.cfg.MinLike))
		if err != nil {
			return n, err
		}
		if err := enc.Encode(conv); err != nil {
			return n, err
		}
		n += countReplies(conv.Comments)
	}
	c.logger.Info().Int("outputs", len(outs)).Int("replies", n).Msg("outputs exported")
	return n, nil
}

func conversation(o storage.Output, minLike int64) (Conversation, error) {
	dyn, err := CleanUpDynamic(o.Dynamic)
	if err != nil {
		return Conversation{}, err
	}
	var replies []*Reply
	if err := json.Unmarshal(o.Comments, &replies); err != nil {
		return Conversation{}, ec.ErrUnmarshalFailed.Clone().WithDetails("comments of " + o.DynamicID).Warp(err)
	}
	return Conversation{Dynamic: dyn, Comments: CleanUpComments(replies, minLike)}, nil
}

func countReplies(replies []*Reply) int {
	n := 0
	for _, r := range replies {
		n += 1 + countReplies(r.Replies)
	}
	return n
}

// MergeDynamics returns newer followed by existing. Dynamics whose id was
// already seen are skipped.
func MergeDynamics(newer, existing []json.RawMessage) []json.RawMessage {
	seen := make(map[string]struct{}, len(existing))
	for _, d := range existing {
		seen[DynamicID(d)] = struct{}{}
	}

	merged := make([]json.RawMessage, 0, len(newer)+len(existing))
	for _, d := range newer {
		id := DynamicID(d)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, d)
	}
	return append(merged, existing...)
}

// MergeJSONL merges newer into the dynamics saved as JSON lines at path and
// rewrites the file. A missing file counts as empty. It returns the number
// of dynamics before and after.
func MergeJSONL(path string, newer []json.RawMessage) (int, int, error) {
	existing, err := readJSONL(path)
	if err != nil {
		return 0, 0, err
	}
	merged := MergeDynamics(newer, existing)

	w, err := sink.CreateJSONL(path)
	if err != nil {
		return len(existing), 0, err
	}
	for _, d := range merged {
		if err := w.Encode(d); err != nil {
			_ = w.Close()
			return len(existing), 0, err
		}
	}
	if err := w.Close(); err != nil {
		return len(existing), 0, ec.ErrIOError.Clone().WithDetails(path).Warp(err)
	}
	return len(existing), len(merged), nil
}

func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ec.ErrIOError.Clone().WithDetails(path).Warp(err)
	}
	defer f.Close()

	var out []json.RawMessage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return nil, ec.ErrUnmarshalFailed.Clone().WithDetails(path, "line "+strconv.Itoa(line))
		}
		out = append(out, append(json.RawMessage(nil), raw...))
	}
	if err := sc.Err(); err != nil {
		return nil, ec.ErrIOError.Clone().WithDetails(path).Warp(err)
	}
	return out, nil
}
