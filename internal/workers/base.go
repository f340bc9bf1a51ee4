package workers

import (
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// BaseWorker holds the connection, logger and tracer shared by handlers.
type BaseWorker struct {
	NatsConn  *nats.Conn
	JetStream nats.JetStreamContext
	Logger    zerolog.Logger
	Tracer    trace.Tracer
}

func NewBaseWorker(nc *nats.Conn, logger zerolog.Logger, tracer trace.Tracer) (*BaseWorker, error) {
	bw := &BaseWorker{NatsConn: nc, Logger: logger, Tracer: tracer}
	if nc == nil {
		return bw, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	bw.JetStream = js
	return bw, nil
}
