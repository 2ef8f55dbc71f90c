package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/staffops/libs/kafkax"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/events"
)

// ErrSkip marks a message that can never succeed and must not be retried.
var ErrSkip = errors.New("skip message")

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the subset of *kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers       string
	GroupID       string
	Topic         string
	RetryAttempts int
	RetryWait     time.Duration
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

type Consumer struct {
	reader    Reader
	logger    *slog.Logger
	inbox     Inbox
	handler   Handler
	attempts  int
	retryWait time.Duration
}

func New(logger *slog.Logger, inbox Inbox, reader Reader, cfg Config, handler Handler) *Consumer {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	return &Consumer{
		reader:    reader,
		logger:    logger,
		inbox:     inbox,
		handler:   handler,
		attempts:  cfg.RetryAttempts,
		retryWait: cfg.RetryWait,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed after each
// message is handled, so delivery is at least once and the inbox drops
// duplicates. A message whose inbox write fails is retried in place and its
// offset is not committed until the write succeeds.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, c.retryWait) {
				return
			}
			continue
		}

		for !c.process(ctx, msg) {
			if !sleep(ctx, c.retryWait) {
				return
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process reports false when the message could not be recorded in the inbox
// and must be processed again.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	ctxSpan = events.WithCorrelationID(ctxSpan, meta.CorrelationID)

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return false
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return true
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrSkip) {
			c.logger.Warn("attendance event skipped", "err", err, "event_id", meta.EventID)
			return true
		}
		if attempt >= c.attempts || !sleep(ctx, c.retryWait) {
			break
		}
	}

	c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
	span.RecordError(err)
	if ferr := c.inbox.Forget(context.WithoutCancel(ctxSpan), meta.EventID); ferr != nil {
		c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
