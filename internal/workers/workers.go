// Package workers runs JetStream pull consumers and defines the crawl jobs
// they process.
package workers

import (
	"context"
	"net/http"

	"github.com/nats-io/nats.go"
)

// Handler is the contract of a worker run by a Runner.
type Handler interface {
	// Subject is the subject the consumer is filtered on.
	Subject() string

	// StreamConfig describes the stream the subject lives in. The Runner
	// creates it when it does not exist.
	StreamConfig() *nats.StreamConfig

	// ConsumerConfig returns the durable pull consumer configuration.
	ConsumerConfig() *nats.ConsumerConfig

	// Handle processes one message under a context carrying the trace of
	// the publisher and the runner timeout. A returned error NAKs the
	// message unless it is permanent.
	Handle(ctx context.Context, msg *nats.Msg) error
}

// Healther replaces the default /healthz and /readyz handlers.
type Healther interface {
	HealthCheck(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
}

// Metricker replaces the default /metrics handler.
type Metricker interface {
	Metric(w http.ResponseWriter, r *http.Request)
}
