package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/scrapers"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/ChiaYuChang/lorekeeper/internal/workers/publishers"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	JobsPrefix   = "lorekeeper.jobs"
	SubjectCrawl = JobsPrefix + ".crawl"
)

// CrawlJob asks a worker to run datasets of one game. No datasets means
// all of them.
type CrawlJob struct {
	RunID    uuid.UUID `json:"run_id"`
	Game     string    `json:"game"     validate:"required,oneof=genshin starrail"`
	Datasets []string  `json:"datasets,omitempty"`
	Force    bool      `json:"force"`
}

func (j CrawlJob) Validate() error {
	if err := global.Validator().Struct(j); err != nil {
		return ec.ErrValidationFailed.Clone().WithDetails("crawl job").Warp(err)
	}
	return nil
}

// ParseCrawlJob decodes and validates a job payload.
func ParseCrawlJob(data []byte) (CrawlJob, error) {
	var job CrawlJob
	if err := json.Unmarshal(data, &job); err != nil {
		return CrawlJob{}, ec.ErrUnmarshalFailed.Clone().WithDetails("crawl job").Warp(err)
	}
	return job, job.Validate()
}

// Enqueue publishes job to the jobs stream. A job without a run id gets a
// new one; the published job is returned.
func Enqueue(ctx context.Context, js publishers.JetStream, job CrawlJob) (CrawlJob, error) {
	if job.RunID == uuid.Nil {
		job.RunID = uuid.New()
	}
	if err := job.Validate(); err != nil {
		return job, err
	}

	pub := publishers.Publisher{Js: js, Tracer: global.Tracer("workers")}
	err := pub.PublishJetStreamMessage(ctx, SubjectCrawl, job,
		attribute.String("run_id", job.RunID.String()),
		attribute.String("game", job.Game))
	return job, err
}

// SiteFactory builds the site a job crawls. force bypasses the page cache.
type SiteFactory func(ctx context.Context, game string, force bool) (*scrapers.Site, error)

// CrawlWorker runs the datasets named by crawl jobs and writes their
// results to a sink.
type CrawlWorker struct {
	BaseWorker
	cfg   *global.WorkerConfig
	sites SiteFactory
	out   sink.Sink
	runs  scrapers.RunRecorder
	limit int
}

func NewCrawlWorker(base *BaseWorker, cfg *global.WorkerConfig, sites SiteFactory, out sink.Sink, runs scrapers.RunRecorder, limit int) *CrawlWorker {
	return &CrawlWorker{
		BaseWorker: *base,
		cfg:        cfg,
		sites:      sites,
		out:        out,
		runs:       runs,
		limit:      limit,
	}
}

func (w *CrawlWorker) Subject() string {
	return SubjectCrawl
}

func (w *CrawlWorker) StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      w.cfg.Stream,
		Subjects:  []string{JobsPrefix + ".>"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	}
}

func (w *CrawlWorker) ConsumerConfig() *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Durable:       w.cfg.Consumer,
		FilterSubject: SubjectCrawl,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       w.cfg.Timeout + time.Minute,
		MaxDeliver:    3,
	}
}

func (w *CrawlWorker) Handle(ctx context.Context, msg *nats.Msg) error {
	job, err := ParseCrawlJob(msg.Data)
	if err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("run_id", job.RunID.String()),
		attribute.String("game", job.Game),
		attribute.Bool("force", job.Force))

	datasets, err := scrapers.Select(job.Game, job.Datasets...)
	if err != nil {
		return ec.ErrBadRequest.Clone().WithDetails(err.Error())
	}
	site, err := w.sites(ctx, job.Game, job.Force)
	if err != nil {
		return err
	}

	logger := w.Logger.With().Str("run_id", job.RunID.String()).Str("game", job.Game).Logger()
	logger.Info().Int("datasets", len(datasets)).Bool("force", job.Force).Msg("crawl job started")

	opts := []scrapers.RunOption{scrapers.WithLimit(w.limit)}
	if w.runs != nil {
		opts = append(opts, scrapers.WithRuns(w.runs))
	}
	if err := scrapers.RunDatasets(ctx, site, datasets, w.out, opts...); err != nil {
		logger.Error().Err(err).Msg("crawl job finished with failures")
		return err
	}
	logger.Info().Msg("crawl job finished")
	return nil
}
