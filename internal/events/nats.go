package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/metrics"
)

// jetStream is the subset of nats.JetStreamContext used for publishing.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher writes events to a JetStream subject.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStream
	subject string
	service string
	logger  *zap.Logger
}

// NewNATS connects to url and enables JetStream.
func NewNATS(url, subject, service string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(service))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return newNATSWithJS(nc, js, subject, service, logger), nil
}

func newNATSWithJS(nc *nats.Conn, js jetStream, subject, service string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{nc: nc, js: js, subject: subject, service: service, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if e.Service == "" {
		e.Service = p.service
	}
	data, err := json.Marshal(e)
	if err != nil {
		metrics.IncEventPublished("nats", "error")
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.subject + "." + e.Type
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{e.Type},
			"correlation_id": []string{e.CorrelationID.String()},
			"service":        []string{e.Service},
			"content_type":   []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		p.logger.Error("events.nats.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", e.Type),
			zap.Error(err))
		metrics.IncEventPublished("nats", "error")
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug("events.nats.published",
		zap.String("subject", subject),
		zap.String("event_id", e.ID.String()))
	metrics.IncEventPublished("nats", "ok")
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil && !p.nc.IsClosed() {
		return p.nc.Drain()
	}
	return nil
}
