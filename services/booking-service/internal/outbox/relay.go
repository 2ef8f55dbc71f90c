package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/staffops/libs/metrics"
	"github.com/md-rashed-zaman/staffops/libs/resilience"
)

// Source claims batches of unpublished records.
type Source interface {
	Claim(ctx context.Context, limit int, fn func([]Record) error) (int, error)
}

// Sink delivers records to the event bus.
type Sink interface {
	Name() string
	Publish(ctx context.Context, records []Record) error
	Close() error
}

type RelayConfig struct {
	PollEvery time.Duration
	BatchSize int
	Breaker   *resilience.CircuitBreaker
}

// Relay moves committed outbox records to a Sink. It polls on an interval and
// additionally runs as soon as Wake is called.
type Relay struct {
	source    Source
	sink      Sink
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
	wake      chan struct{}
}

func NewRelay(source Source, sink Sink, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker("publish", 5, 30*time.Second)
	}
	return &Relay{
		source:    source,
		sink:      sink,
		breaker:   cfg.Breaker,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		wake:      make(chan struct{}, 1),
	}
}

// Wake requests an immediate pass. It never blocks.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.drain(ctx)
	}
}

func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.PublishOnce(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, resilience.ErrCircuitOpen):
				r.logger.Warn("outbox publish skipped; breaker open", "sink", r.sink.Name())
			default:
				metrics.RecordOutboxFailure(r.sink.Name())
				r.logger.Error("outbox publish failed", "sink", r.sink.Name(), "err", err)
			}
			return
		}
		if n < r.batchSize {
			return
		}
	}
}

// PublishOnce relays at most one batch and returns how many records were sent.
// When the publish breaker is open the batch stays unpublished.
func (r *Relay) PublishOnce(ctx context.Context) (int, error) {
	n, err := r.source.Claim(ctx, r.batchSize, func(records []Record) error {
		return r.breaker.Execute(func() error {
			return r.sink.Publish(ctx, records)
		})
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordOutboxPublished(r.sink.Name(), n)
	}
	return n, nil
}
