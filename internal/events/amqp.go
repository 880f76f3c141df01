package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/smart-hedge/marketdata-gateway/internal/metrics"
)

// amqpChannel is the subset of *amqp.Channel used for publishing.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher writes events to a RabbitMQ routing key on the default exchange.
type AMQPPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	routingKey string
	service    string
	logger     *zap.Logger
}

// NewAMQP dials RabbitMQ at url and opens a channel.
func NewAMQP(url, routingKey, service string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p := newAMQPWithChannel(ch, routingKey, service, logger)
	p.conn = conn
	return p, nil
}

func newAMQPWithChannel(ch amqpChannel, routingKey, service string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{channel: ch, routingKey: routingKey, service: service, logger: logger}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	if e.Service == "" {
		e.Service = p.service
	}
	body, err := json.Marshal(e)
	if err != nil {
		metrics.IncEventPublished("amqp", "error")
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",           // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			MessageId:     e.ID.String(),
			CorrelationId: e.CorrelationID.String(),
			Type:          e.Type,
			AppId:         e.Service,
			Timestamp:     e.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("events.amqp.publish_failed",
			zap.String("routing_key", p.routingKey),
			zap.String("event_type", e.Type),
			zap.Error(err))
		metrics.IncEventPublished("amqp", "error")
		return fmt.Errorf("publish %s: %w", p.routingKey, err)
	}
	metrics.IncEventPublished("amqp", "ok")
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
