// Package publishers publishes JSON payloads to NATS with trace context in
// the message headers.
package publishers

import (
	"context"
	"encoding/json"
	"time"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	MinRetryInterval = 500 * time.Millisecond
	MaxRetryTimes    = 5
)

// Conn is the part of *nats.Conn used for core publishing.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// JetStream is the part of nats.JetStreamContext used for persisted
// publishing.
type JetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type Publisher struct {
	Conn   Conn
	Js     JetStream
	Tracer trace.Tracer
}

// Message builds a NATS message carrying payload as JSON and the span
// context of ctx in its headers.
func Message(ctx context.Context, subject string, payload any) (*nats.Msg, error) {
	headers := nats.Header{}
	otel.GetTextMapPropagator().
		Inject(ctx, propagation.HeaderCarrier(headers))

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ec.ErrNATSPublishFailed.Clone().
			WithDetails("failed to marshal payload").
			Warp(err)
	}
	return &nats.Msg{Subject: subject, Data: data, Header: headers}, nil
}

// PublishNATSMessage publishes on the core connection, retrying with
// exponential backoff.
func (p Publisher) PublishNATSMessage(ctx context.Context, subject string,
	payload any, attrs ...attribute.KeyValue) error {
	attrs = append(attrs, attribute.String("subject", subject))
	ctx, span := p.Tracer.Start(ctx, "Publisher.PublishNATSMessage",
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	msg, err := Message(ctx, subject, payload)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = retry(ctx, func() error { return p.Conn.PublishMsg(msg) })
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// PublishJetStreamMessage publishes to a stream and waits for the ack.
func (p Publisher) PublishJetStreamMessage(ctx context.Context, subject string,
	payload any, attrs ...attribute.KeyValue) error {
	attrs = append(attrs, attribute.String("subject", subject))
	ctx, span := p.Tracer.Start(ctx, "Publisher.PublishJetStreamMessage",
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	msg, err := Message(ctx, subject, payload)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = retry(ctx, func() error {
		_, err := p.Js.PublishMsg(msg, nats.Context(ctx))
		return err
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= MaxRetryTimes; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == MaxRetryTimes {
			break
		}
		if werr := utils.SleepWithContext(ctx, MinRetryInterval<<attempt); werr != nil {
			err = werr
			break
		}
	}
	return ec.ErrNATSPublishFailed.Clone().
		WithDetails("publish retries exhausted").
		Warp(err)
}
