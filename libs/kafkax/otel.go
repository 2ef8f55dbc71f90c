package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Headers adapts a Kafka header slice to the OTel text map carrier.
type Headers []kafka.Header

var _ propagation.TextMapCarrier = (*Headers)(nil)

func (h *Headers) Get(key string) string { return HeaderValue(*h, key) }

func (h *Headers) Keys() []string {
	keys := make([]string, len(*h))
	for i, hdr := range *h {
		keys[i] = hdr.Key
	}
	return keys
}

// Set replaces an existing header in place so re-injection never duplicates
// traceparent.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := Headers(headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	return carrier
}

// ExtractTraceContext returns ctx with the remote span context and baggage
// carried by msg, if any.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	carrier := Headers(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}
