package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/md-rashed-zaman/staffops/libs/config"
	"github.com/md-rashed-zaman/staffops/libs/db"
	"github.com/md-rashed-zaman/staffops/libs/httpx"
	"github.com/md-rashed-zaman/staffops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/staffops/libs/otel"
	"github.com/md-rashed-zaman/staffops/libs/resilience"
	"github.com/md-rashed-zaman/staffops/libs/runtime"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/attendance"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/geocoding"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/locations"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

type serviceConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	CORSOrigins string `envconfig:"CORS_ORIGINS"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`

	EventBus      string `envconfig:"EVENT_BUS" default:"kafka"`
	KafkaBrokers  string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID  string `envconfig:"KAFKA_GROUP_ID" default:"booking-service"`
	AMQPURL       string `envconfig:"AMQP_URL"`
	AMQPExchange  string `envconfig:"AMQP_EXCHANGE" default:"staffops.events"`
	CheckInTopic  string `envconfig:"ATTENDANCE_CHECKIN_TOPIC" default:"attendance.checkin.v1"`
	CheckOutTopic string `envconfig:"ATTENDANCE_CHECKOUT_TOPIC" default:"attendance.checkout.v1"`

	OutboxPoll  time.Duration `envconfig:"OUTBOX_POLL" default:"2s"`
	OutboxBatch int           `envconfig:"OUTBOX_BATCH" default:"50"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	GeocodingURL      string        `envconfig:"GEOCODING_URL" default:"https://maps.googleapis.com/maps/api/geocode/json"`
	GeocodingAPIKey   string        `envconfig:"GEOCODING_API_KEY"`
	GeocodingQPS      float64       `envconfig:"GEOCODING_QPS" default:"10"`
	GeocodingCacheTTL time.Duration `envconfig:"GEOCODING_CACHE_TTL" default:"24h"`

	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerReset     time.Duration `envconfig:"BREAKER_RESET" default:"30s"`

	RateLimitPerMinute int  `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`
	RateLimitFailOpen  bool `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	var cfg serviceConfig
	if err := config.Load("", &cfg); err != nil {
		logger.Error("config invalid", "err", err)
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("db migration failed", "err", err)
		panic(err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
	}

	sink, err := newSink(cfg)
	if err != nil {
		logger.Error("event bus init failed", "err", err)
		panic(err)
	}
	defer func() { _ = sink.Close() }()

	outboxRepo := outbox.NewRepository(pool)
	relay := outbox.NewRelay(outboxRepo, sink, logger, outbox.RelayConfig{
		PollEvery: cfg.OutboxPoll,
		BatchSize: cfg.OutboxBatch,
		Breaker:   resilience.NewCircuitBreaker("publish", cfg.BreakerThreshold, cfg.BreakerReset),
	})

	store := storage.NewStore(pool, outboxRepo)
	bookings := workflow.NewBookings(store, relay, logger)
	lifecycle := workflow.NewEvents(store, relay, logger)

	var geocoder locations.Geocoder
	if cfg.GeocodingAPIKey != "" {
		var cache geocoding.Cache
		if rdb != nil {
			cache = geocoding.NewRedisCache(rdb, "staffops:geo")
		}
		geocoder = geocoding.NewClient(geocoding.Config{
			BaseURL:  cfg.GeocodingURL,
			APIKey:   cfg.GeocodingAPIKey,
			QPS:      cfg.GeocodingQPS,
			CacheTTL: cfg.GeocodingCacheTTL,
		}, cache, logger)
	} else {
		logger.Warn("GEOCODING_API_KEY not set; locations will be saved without coordinates")
	}
	breakers := resilience.NewRegistry(cfg.BreakerThreshold, cfg.BreakerReset,
		resilience.WithFailurePredicate(locations.CountsAsFailure))
	locationSvc := locations.NewEnhanced(
		locations.NewService(storage.NewLocationRepository(pool)),
		geocoder,
		outbox.NewWriter(pool, outboxRepo, relay),
		breakers,
		logger,
	)

	api := handlers.NewAPI(bookings, lifecycle, locationSvc, logger, cfg.JWTSecret)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.EventBus == "kafka" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", api.Routes())

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.APICORS(cfg.CORSOrigins)),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(cfg.RequestTimeout),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "staffops:rl")
		middleware = append(middleware, limiter.Middleware(logger, cfg.RateLimitFailOpen))
	} else {
		middleware = append(middleware, httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware())
	}
	httpHandler := otelhttp.NewHandler(httpx.Chain(mux, middleware...), "booking")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		relay.Run(gctx)
		return nil
	})
	if cfg.KafkaBrokers != "" {
		inbox := attendance.NewInboxRepository(pool)
		startConsumer := func(topic string, handler attendance.Handler) {
			if strings.TrimSpace(topic) == "" {
				return
			}
			consumerCfg := attendance.Config{
				Brokers: cfg.KafkaBrokers,
				GroupID: cfg.KafkaGroupID,
				Topic:   topic,
			}
			c := attendance.New(logger, inbox, attendance.NewReader(consumerCfg), consumerCfg, handler)
			g.Go(func() error {
				c.Run(gctx)
				return nil
			})
		}
		startConsumer(cfg.CheckInTopic, attendance.CheckInHandler(lifecycle))
		startConsumer(cfg.CheckOutTopic, attendance.CheckOutHandler(lifecycle))
	}
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", "err", err)
	}
	logger.Info("http server stopped")
}

func newSink(cfg serviceConfig) (outbox.Sink, error) {
	switch strings.ToLower(cfg.EventBus) {
	case "kafka", "":
		if cfg.KafkaBrokers == "" {
			return nil, errors.New("KAFKA_BROKERS is required when EVENT_BUS=kafka")
		}
		return outbox.NewKafkaSink(cfg.KafkaBrokers), nil
	case "rabbitmq", "amqp":
		if cfg.AMQPURL == "" {
			return nil, errors.New("AMQP_URL is required when EVENT_BUS=rabbitmq")
		}
		sink, err := outbox.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown EVENT_BUS %q", cfg.EventBus)
	}
}
