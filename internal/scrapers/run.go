package scrapers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	"github.com/ChiaYuChang/lorekeeper/internal/sink"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const DefaultDatasetLimit = 4

// RunRecorder keeps the history of dataset runs.
type RunRecorder interface {
	Start(ctx context.Context, game, dataset string) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, records int, runErr error) error
}

type runner struct {
	runs  RunRecorder
	limit int
}

type RunOption func(*runner)

func WithRuns(r RunRecorder) RunOption {
	return func(rn *runner) { rn.runs = r }
}

// WithLimit bounds the number of datasets running at once.
func WithLimit(n int) RunOption {
	return func(rn *runner) {
		if n > 0 {
			rn.limit = n
		}
	}
}

// RunDatasets runs every dataset and writes each result to out. A failing
// dataset does not stop the others; their errors are joined.
func RunDatasets(ctx context.Context, site *Site, datasets []Dataset, out sink.Sink, opts ...RunOption) error {
	rn := runner{limit: DefaultDatasetLimit}
	for _, opt := range opts {
		opt(&rn)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(rn.limit)
	for _, d := range datasets {
		g.Go(func() error {
			if err := rn.run(ctx, site, d, out); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s/%s: %w", d.Game, d.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (rn runner) run(ctx context.Context, site *Site, d Dataset, out sink.Sink) (err error) {
	ctx, span := global.Tracer("scrapers").Start(ctx, "scrapers.dataset",
		trace.WithAttributes(
			attribute.String("game", d.Game),
			attribute.String("dataset", d.Name()),
		))
	defer span.End()

	logger := site.Logger.With().Str("dataset", d.Name()).Logger()
	id := uuid.Nil
	if rn.runs != nil {
		if id, err = rn.runs.Start(ctx, d.Game, d.Name()); err != nil {
			logger.Warn().Err(err).Msg("failed to record run start")
			id, err = uuid.Nil, nil
		}
	}

	start := time.Now()
	logger.Info().Str("run_id", id.String()).Msg("dataset started")

	var records int
	defer func() {
		status := "done"
		if err != nil {
			status = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.DatasetRuns.WithLabelValues(d.Game, status).Inc()
		if rn.runs != nil && id != uuid.Nil {
			if ferr := rn.runs.Finish(context.WithoutCancel(ctx), id, records, err); ferr != nil {
				logger.Warn().Err(ferr).Msg("failed to record run finish")
			}
		}
		logger.Info().
			Str("status", status).
			Int("records", records).
			Dur("elapsed", time.Since(start)).
			Msg("dataset finished")
	}()

	value, err := d.Run(ctx, site)
	if err != nil {
		return err
	}
	records = size(value)
	return out.Write(ctx, d.Destination(), value)
}
