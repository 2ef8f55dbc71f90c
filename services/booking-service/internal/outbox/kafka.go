package outbox

import (
	"context"

	"github.com/md-rashed-zaman/staffops/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each record to the topic named after its event type, keyed
// by aggregate id so that events of one aggregate stay ordered.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(brokers string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(kafkax.SplitBrokers(brokers)...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msgCtx := rec.Trace.Attach(ctx)
		headers := kafkax.MetaHeaders(kafkax.EventMeta{
			EventID:       rec.EventID,
			EventType:     rec.EventType,
			CorrelationID: rec.CorrelationID,
		})
		msgs = append(msgs, kafka.Message{
			Topic:   rec.EventType,
			Key:     []byte(rec.AggregateID),
			Value:   rec.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error { return s.writer.Close() }
