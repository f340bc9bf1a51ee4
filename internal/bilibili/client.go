// Package bilibili collects the dynamics of an official account and their
// most liked replies, and turns them into conversation records.
package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/fetch"
	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Comment resource types of the reply endpoint.
const (
	TypeVideo       = 1
	TypeDynamicDraw = 11
	TypeDynamic     = 17
)

// sortByLike orders replies by their like count.
const sortByLike = "2"

const (
	spaceHistoryPath = "/dynamic_svr/v1/dynamic_svr/space_history"
	replyPath        = "/x/v2/reply"
)

// Client calls the feed and reply endpoints. Requests wait on a shared rate
// limiter and are traced.
type Client struct {
	rest    *resty.Client
	feedURL string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func NewClient(cfg *global.BilibiliConfig, opts ...Option) *Client {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeaders(map[string]string{
			"User-Agent": fetch.DefaultUserAgent,
			"Referer":    "https://www.bilibili.com/",
			"Accept":     "application/json, text/plain, */*",
		})
	if cfg.Cookie != "" {
		rest.SetHeader("Cookie", cfg.Cookie)
	}

	c := &Client{
		rest:    rest,
		feedURL: strings.TrimRight(cfg.FeedURL, "/"),
		limiter: rate.NewLimiter(utils.IfElse(cfg.Rate > 0, rate.Limit(cfg.Rate), rate.Inf), 1),
		logger:  global.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	rest.OnBeforeRequest(c.beforeRequest)
	rest.OnAfterResponse(c.afterResponse)
	rest.OnError(c.onError)
	return c
}

type spanKey struct{}

func (c *Client) beforeRequest(_ *resty.Client, req *resty.Request) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	ctx, span := global.Tracer("bilibili").Start(req.Context(), "bilibili.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL)))
	req.SetContext(context.WithValue(ctx, spanKey{}, span))
	c.logger.Debug().Str("method", req.Method).Str("url", req.URL).Msg("start request")
	return nil
}

func (c *Client) afterResponse(_ *resty.Client, res *resty.Response) error {
	span, ok := res.Request.Context().Value(spanKey{}).(trace.Span)
	if !ok {
		return nil
	}
	defer span.End()
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode()))
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}
	return nil
}

func (c *Client) onError(req *resty.Request, err error) {
	c.logger.Error().Err(err).Str("method", req.Method).Str("url", req.URL).Msg("request failed")
	span, ok := req.Context().Value(spanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
}

// get returns the data field of a successful API envelope.
func (c *Client) get(ctx context.Context, endpoint, url string, params map[string]string) (gjson.Result, error) {
	resp, err := c.rest.R().SetContext(ctx).SetQueryParams(params).Get(url)
	if err != nil {
		metrics.APICalls.WithLabelValues(endpoint, "error").Inc()
		return gjson.Result{}, ec.ErrRemoteAPI.Clone().WithDetails(endpoint).Warp(err)
	}
	if resp.IsError() {
		metrics.APICalls.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()
		return gjson.Result{}, ec.ErrRemoteAPI.Clone().WithDetails(endpoint, resp.Status())
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		metrics.APICalls.WithLabelValues(endpoint, "invalid").Inc()
		return gjson.Result{}, ec.ErrUnmarshalFailed.Clone().WithDetails(endpoint, utils.Preview(string(body), 80))
	}
	env := gjson.ParseBytes(body)
	if code := env.Get("code").Int(); code != 0 {
		metrics.APICalls.WithLabelValues(endpoint, "code_"+strconv.FormatInt(code, 10)).Inc()
		return gjson.Result{}, ec.ErrRemoteAPI.Clone().
			WithDetails(endpoint, fmt.Sprintf("code %d: %s", code, env.Get("message").String()))
	}
	metrics.APICalls.WithLabelValues(endpoint, "ok").Inc()
	return env.Get("data"), nil
}

// History is one page of a space history.
type History struct {
	Cards      []json.RawMessage
	HasMore    bool
	NextOffset string
}

// SpaceHistory returns the dynamics of uid posted before offset. An empty
// offset starts from the newest one.
func (c *Client) SpaceHistory(ctx context.Context, uid, offset string) (History, error) {
	data, err := c.get(ctx, "space_history", c.feedURL+spaceHistoryPath, map[string]string{
		"host_uid":          uid,
		"offset_dynamic_id": utils.DefaultIfZero(offset, "0"),
		"need_top":          "0",
	})
	if err != nil {
		return History{}, err
	}

	h := History{
		HasMore:    data.Get("has_more").Int() == 1,
		NextOffset: data.Get("next_offset").String(),
	}
	for _, card := range data.Get("cards").Array() {
		raw, err := decodeCard(card.Raw)
		if err != nil {
			return History{}, err
		}
		h.Cards = append(h.Cards, raw)
	}
	return h, nil
}

// decodeCard turns the card and extend_json fields, which the endpoint
// sends as JSON encoded strings, into objects. Key order is kept.
func decodeCard(raw string) (json.RawMessage, error) {
	card := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal([]byte(raw), card); err != nil {
		return nil, ec.ErrUnmarshalFailed.Clone().WithDetails("card").Warp(err)
	}
	for _, key := range []string{"card", "extend_json"} {
		v, ok := card.Get(key)
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) != nil || !json.Valid([]byte(s)) {
			continue
		}
		card.Set(key, json.RawMessage(s))
	}
	out, err := json.Marshal(card)
	if err != nil {
		return nil, ec.ErrMarshalFailed.Clone().WithDetails("card").Warp(err)
	}
	return out, nil
}

// CommentPage is one page of replies.
type CommentPage struct {
	Replies []json.RawMessage
	Size    int
	Count   int
}

// Comments returns page pn of the replies of oid, most liked first.
func (c *Client) Comments(ctx context.Context, oid string, typ, pn int) (CommentPage, error) {
	data, err := c.get(ctx, "reply", replyPath, map[string]string{
		"oid":  oid,
		"type": strconv.Itoa(typ),
		"pn":   strconv.Itoa(pn),
		"sort": sortByLike,
	})
	if err != nil {
		return CommentPage{}, err
	}

	page := CommentPage{
		Size:  int(data.Get("page.size").Int()),
		Count: int(data.Get("page.count").Int()),
	}
	for _, r := range data.Get("replies").Array() {
		page.Replies = append(page.Replies, json.RawMessage(r.Raw))
	}
	return page, nil
}
