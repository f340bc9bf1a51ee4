package bilibili

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/storage"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Collector moves the feed of an account through storage: dynamics first,
// then their replies, then the processed outputs.
type Collector struct {
	client *Client
	store  *storage.Storage
	cfg    *global.BilibiliConfig
	logger zerolog.Logger
}

func NewCollector(client *Client, store *storage.Storage, cfg *global.BilibiliConfig) *Collector {
	return &Collector{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: global.Logger.With().Str("component", "bilibili").Logger(),
	}
}

// DynamicID returns the id of a raw card.
func DynamicID(card []byte) string {
	desc := gjson.GetBytes(card, "desc")
	return utils.DefaultIfZero(desc.Get("dynamic_id_str").String(), desc.Get("dynamic_id").String())
}

// CollectDynamics pages through the space history of uid, newest first, and
// stores every dynamic until it reaches one that is already stored or the
// history ends. The new dynamics are returned in the order received.
func (c *Collector) CollectDynamics(ctx context.Context, uid string) ([]storage.Dynamic, error) {
	ctx, span := global.Tracer("bilibili").Start(ctx, "bilibili.dynamics")
	defer span.End()
	span.SetAttributes(attribute.String("uid", uid))

	var (
		fresh  []storage.Dynamic
		offset string
	)
	for {
		h, err := c.client.SpaceHistory(ctx, uid, offset)
		if err != nil {
			span.RecordError(err)
			return fresh, err
		}

		for _, card := range h.Cards {
			dyn := storage.Dynamic{
				ID:        DynamicID(card),
				UID:       uid,
				Data:      card,
				Timestamp: gjson.GetBytes(card, "desc.timestamp").Int(),
			}
			if dyn.ID == "" {
				return fresh, ec.ErrUnmarshalFailed.Clone().WithDetails("card without dynamic id")
			}
			inserted, err := c.store.Dynamics().Insert(ctx, dyn)
			if err != nil {
				return fresh, err
			}
			if !inserted {
				c.logger.Info().Str("dynamic_id", dyn.ID).Int("new", len(fresh)).Msg("reached stored dynamic")
				return fresh, nil
			}
			fresh = append(fresh, dyn)
		}
		c.logger.Debug().Int("new", len(fresh)).Str("offset", offset).Msg("space history page stored")

		if !h.HasMore || h.NextOffset == "" || h.NextOffset == offset {
			return fresh, nil
		}
		offset = h.NextOffset
	}
}

type replySource struct {
	oid string
	typ int
}

// CollectComments fetches the replies of every dynamic of uid that has none
// yet. A dynamic whose replies cannot be fetched is left for the next run.
// It returns the number of replies stored.
func (c *Collector) CollectComments(ctx context.Context, uid string) (int, error) {
	ctx, span := global.Tracer("bilibili").Start(ctx, "bilibili.comments")
	defer span.End()

	pending, err := c.store.Dynamics().PendingComments(ctx, uid)
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for i, dyn := range pending {
		n, err := c.collectComments(ctx, dyn)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			c.logger.Warn().Err(err).Str("dynamic_id", dyn.ID).Msg("failed to collect replies")
			errs = append(errs, err)
			continue
		}
		c.logger.Info().
			Str("dynamic_id", dyn.ID).
			Int("replies", n).
			Int("done", i+1).
			Int("pending", len(pending)).
			Msg("replies collected")
	}
	span.SetAttributes(attribute.Int("replies", total))
	return total, errors.Join(errs...)
}

func (c *Collector) collectComments(ctx context.Context, dyn storage.Dynamic) (int, error) {
	desc := gjson.GetBytes(dyn.Data, "desc")
	src := replySource{oid: dyn.ID, typ: TypeDynamic}
	pages := c.cfg.PageLimit
	if desc.Get("bvid").String() != "" {
		src = replySource{oid: gjson.GetBytes(dyn.Data, "card.aid").String(), typ: TypeVideo}
		pages *= 2
	}
	fallback := replySource{oid: desc.Get("rid").String(), typ: TypeDynamicDraw}

	stored, seen := 0, 0
	for pn := 1; pn <= pages; pn++ {
		page, err := c.client.Comments(ctx, src.oid, src.typ, pn)
		if err != nil {
			c.logger.Debug().Err(err).Str("dynamic_id", dyn.ID).Msg("retrying replies as a draw dynamic")
			page, err = c.client.Comments(ctx, fallback.oid, fallback.typ, pn)
			if err != nil {
				return stored, err
			}
		}
		if page.Size == 0 {
			break
		}

		comments := make([]storage.Comment, 0, len(page.Replies))
		for _, r := range page.Replies {
			comments = append(comments, storage.Comment{
				DynamicID: dyn.ID,
				RPID:      replyID(r),
				Data:      r,
			})
		}
		if err := c.store.Comments().Insert(ctx, comments...); err != nil {
			return stored, err
		}
		stored += len(comments)

		seen += page.Size
		if seen >= page.Count {
			break
		}
		if err := utils.SleepWithContext(ctx, utils.RandomDuration(c.cfg.Delay)); err != nil {
			return stored, err
		}
	}
	return stored, c.store.Dynamics().MarkCommentsFetched(ctx, dyn.ID)
}

func replyID(reply json.RawMessage) string {
	r := gjson.ParseBytes(reply)
	return utils.DefaultIfZero(r.Get("rpid_str").String(), r.Get("rpid").String())
}

// BuildOutputs processes the replies of every dynamic of uid without an
// output. Dynamics are handled in batches, each batch by a bounded group of
// workers. It returns the number of outputs written.
func (c *Collector) BuildOutputs(ctx context.Context, uid string) (int, error) {
	ctx, span := global.Tracer("bilibili").Start(ctx, "bilibili.outputs")
	defer span.End()

	pending, err := c.store.Dynamics().PendingOutputs(ctx, uid)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, batch := range utils.Chunk(pending, c.cfg.BatchSize) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Workers)
		for _, dyn := range batch {
			g.Go(func() error {
				return c.buildOutput(gctx, dyn)
			})
		}
		if err := g.Wait(); err != nil {
			span.RecordError(err)
			return n, err
		}
		n += len(batch)
		c.logger.Info().Int("written", n).Int("pending", len(pending)).Msg("output batch written")
	}
	return n, nil
}

func (c *Collector) buildOutput(ctx context.Context, dyn storage.Dynamic) error {
	raw, err := c.store.Comments().ByDynamic(ctx, dyn.ID)
	if err != nil {
		return err
	}
	replies := ProcessReplies(raw, int64(c.cfg.MinLike))
	data, err := json.Marshal(replies)
	if err != nil {
		return ec.ErrMarshalFailed.Clone().WithDetails("replies of " + dyn.ID).Warp(err)
	}
	return c.store.Outputs().Upsert(ctx, storage.Output{
		DynamicID: dyn.ID,
		Dynamic:   dyn.Data,
		Comments:  data,
	})
}
