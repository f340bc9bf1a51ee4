package workers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/rs/zerolog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxFetchBackoff = 120 * time.Second

// Runner owns the pull subscription of one Handler and its health server.
type Runner struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	logger  zerolog.Logger
	tracer  trace.Tracer
	worker  Handler
	options Options
}

func NewRunner(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer, w Handler, opts ...Option) (*Runner, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, ec.ErrNATSServerError.Clone().WithDetails("jetstream unavailable").Warp(err)
	}

	r := &Runner{
		nc:      nc,
		js:      js,
		logger:  logger,
		tracer:  tracer,
		worker:  w,
		options: defaultOptions(),
	}
	for _, opt := range opts {
		if err := opt(&r.options); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ensureStream creates the stream of the worker when it is missing.
func (r *Runner) ensureStream() error {
	cfg := r.worker.StreamConfig()
	_, err := r.js.StreamInfo(cfg.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return ec.ErrNATSServerError.Clone().WithDetails("stream info " + cfg.Name).Warp(err)
	}
	if _, err := r.js.AddStream(cfg); err != nil {
		return ec.ErrNATSServerError.Clone().WithDetails("add stream " + cfg.Name).Warp(err)
	}
	r.logger.Info().Str("stream", cfg.Name).Strs("subjects", cfg.Subjects).Msg("stream created")
	return nil
}

// Run pulls and handles messages one at a time until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.ensureStream(); err != nil {
		return err
	}

	stream := r.worker.StreamConfig().Name
	consumer := r.worker.ConsumerConfig()
	sub, err := r.js.PullSubscribe(
		r.worker.Subject(),
		consumer.Durable,
		nats.BindStream(stream),
		nats.MaxDeliver(consumer.MaxDeliver),
		nats.AckWait(consumer.AckWait))
	if err != nil {
		return ec.ErrNATSServerError.Clone().
			WithDetails("failed to create pull subscription").
			Warp(err)
	}

	srv := r.healthCheckServer()
	go func() {
		r.logger.Info().Str("addr", srv.Addr).Msg("health check server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Msg("health check server failed")
		}
	}()

	start := time.Now()
	r.logger.Info().
		Str("subject", r.worker.Subject()).
		Str("durable", consumer.Durable).
		Str("stream", stream).
		Msg("runner started, waiting for messages...")

	retry := 0
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().
				Dur("uptime", time.Since(start)).
				Msg("runner shutting down gracefully...")
			r.shutdown(srv, sub)
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(r.options.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			wait := min(time.Second<<retry, maxFetchBackoff)
			r.logger.Error().
				Err(err).
				Int("retry", retry).
				Dur("wait", wait).
				Msg("failed to fetch messages")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			retry++
			continue
		}
		retry = 0
		for _, msg := range msgs {
			r.processMessage(ctx, msg)
		}
	}
}

func (r *Runner) shutdown(srv *http.Server, sub *nats.Subscription) {
	if err := sub.Unsubscribe(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to unsubscribe")
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.options.ShutdownWaitTime)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("health check server shutdown")
	}
}

// Ackable is the part of *nats.Msg the runner settles.
type Ackable interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// processMessage handles one message inside a span and settles it.
func (r *Runner) processMessage(ctx context.Context, msg *nats.Msg) {
	pCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	sCtx, span := r.tracer.Start(pCtx, msg.Subject, trace.WithAttributes(
		attribute.String("nats.subject", msg.Subject),
	))
	defer span.End()

	tCtx, cancel := context.WithTimeout(sCtx, r.options.Timeout)
	defer cancel()

	err := r.worker.Handle(tCtx, msg)
	if err != nil {
		span.RecordError(err)
	}
	Settle(r.logger, msg, err, r.options.NakDelay)
	span.SetAttributes(attribute.Bool("success", err == nil))
}

// Settle ACKs a handled message, terminates one that failed permanently and
// NAKs the others with delay.
func Settle(logger zerolog.Logger, msg Ackable, err error, delay time.Duration) {
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error().Err(ackErr).Msg("failed to send ACK")
			return
		}
		logger.Info().Msg("message processed and ACKed successfully")
	case Permanent(err):
		logger.Error().Err(err).Msg("message rejected, terminating")
		if termErr := msg.Term(); termErr != nil {
			logger.Error().Err(termErr).Msg("failed to send TERM")
		}
	default:
		logger.Error().Err(err).Msg("worker handler failed, sending NAK")
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			logger.Error().Err(nakErr).Msg("failed to send NAK")
		}
	}
}

// Permanent reports whether redelivering the message cannot succeed.
func Permanent(err error) bool {
	return errors.Is(err, ec.ErrBadRequest) ||
		errors.Is(err, ec.ErrValidationFailed) ||
		errors.Is(err, ec.ErrUnmarshalFailed)
}

func (r *Runner) healthCheckServer() *http.Server {
	mux := http.NewServeMux()

	if h, ok := r.worker.(Healther); ok {
		r.logger.Info().Msg("using custom health check handlers provided by worker")
		mux.HandleFunc("/healthz", h.HealthCheck)
		mux.HandleFunc("/readyz", h.Ready)
	} else {
		mux.HandleFunc("/healthz", r.defaultHealthCheck)
		mux.HandleFunc("/readyz", r.defaultReadyCheck)
	}

	if m, ok := r.worker.(Metricker); ok {
		mux.HandleFunc("/metrics", m.Metric)
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", r.options.HealthCheckHost, r.options.HealthCheckPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (r *Runner) defaultHealthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(ec.Success.HttpStatusCode)
	_ = ec.Success.MarshalAndWriteTo(w)
}

func (r *Runner) defaultReadyCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	if !r.nc.IsConnected() {
		e := ec.ErrNATSServerError.Clone().WithDetails("not connected")
		r.logger.Error().Str("remote_addr", req.RemoteAddr).Err(e).Msg("readiness check failed")
		w.WriteHeader(e.HttpStatusCode)
		_ = e.MarshalAndWriteTo(w)
		return
	}

	w.WriteHeader(ec.Success.HttpStatusCode)
	_ = ec.Success.MarshalAndWriteTo(w)
}
