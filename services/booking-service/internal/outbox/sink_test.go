package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/md-rashed-zaman/staffops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/staffops/libs/otel"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
)

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent []published
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func sampleRecord() Record {
	return Record{
		ID:            7,
		EventID:       "e-1",
		AggregateType: "event_instance",
		AggregateID:   "i-1",
		EventType:     events.EventStarted,
		CorrelationID: "corr-1",
		Payload:       []byte(`{"type":"EVENT_STARTED"}`),
		CreatedAt:     time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaSink_TopicKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)

	require.NoError(t, sink.Publish(context.Background(), []Record{sampleRecord()}))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, events.EventStarted, msg.Topic)
	assert.Equal(t, "i-1", string(msg.Key))
	assert.Equal(t, "e-1", kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))
	assert.Equal(t, events.EventStarted, kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType))
	assert.Equal(t, "corr-1", kafkax.HeaderValue(msg.Headers, kafkax.HeaderCorrelationID))
}

func TestAMQPSink_RoutingKeyIsEventType(t *testing.T) {
	ch := &fakeChannel{}
	sink := NewAMQPSinkWithChannel(ch, "staffops.events")

	require.NoError(t, sink.Publish(context.Background(), []Record{sampleRecord()}))
	require.Len(t, ch.sent, 1)

	p := ch.sent[0]
	assert.Equal(t, "staffops.events", p.exchange)
	assert.Equal(t, events.EventStarted, p.key)
	assert.Equal(t, "e-1", p.msg.MessageId)
	assert.Equal(t, "corr-1", p.msg.CorrelationId)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), p.msg.DeliveryMode)
}

func TestEncode(t *testing.T) {
	e := events.Event{
		ID:            "e-1",
		Type:          events.EventReady,
		AggregateType: events.AggregateEvent,
		AggregateID:   "i-1",
		CorrelationID: "corr-1",
		OccurredAt:    time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
		Payload:       map[string]any{"kits_assigned": true},
	}
	raw, err := Encode(e)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, events.EventReady, env.Type)
	assert.Equal(t, true, env.Data["kits_assigned"])
}

func TestSinksCarryStoredTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	rec := sampleRecord()
	rec.Trace = otelx.TraceContext{Parent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}

	w := &fakeWriter{}
	require.NoError(t, NewKafkaSinkWithWriter(w).Publish(context.Background(), []Record{rec}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, rec.Trace.Parent, kafkax.HeaderValue(w.msgs[0].Headers, "traceparent"))

	ch := &fakeChannel{}
	require.NoError(t, NewAMQPSinkWithChannel(ch, "staffops.events").Publish(context.Background(), []Record{rec}))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, rec.Trace.Parent, ch.sent[0].msg.Headers["traceparent"])
}
