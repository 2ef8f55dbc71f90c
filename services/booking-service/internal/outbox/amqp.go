package outbox

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by AMQPSink.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes records to a RabbitMQ topic exchange with the event type
// as routing key.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func NewAMQPSinkWithChannel(ch Channel, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

func (s *AMQPSink) Name() string { return "rabbitmq" }

func (s *AMQPSink) Publish(ctx context.Context, records []Record) error {
	for _, rec := range records {
		headers := amqp.Table{"event_type": rec.EventType}
		if rec.CorrelationID != "" {
			headers["correlation_id"] = rec.CorrelationID
		}
		for k, v := range rec.Trace.Fields() {
			headers[k] = v
		}
		err := s.ch.PublishWithContext(ctx, s.exchange, rec.EventType, false, false, amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     rec.EventID,
			CorrelationId: rec.CorrelationID,
			Type:          rec.EventType,
			Timestamp:     rec.CreatedAt,
			Headers:       headers,
			Body:          rec.Payload,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", rec.EventID, err)
		}
	}
	return nil
}

func (s *AMQPSink) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
