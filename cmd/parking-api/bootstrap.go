package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ParkBox/config"
	"github.com/BearBump/ParkBox/internal/api/parking_api"
	"github.com/BearBump/ParkBox/internal/broker/kafka"
	"github.com/BearBump/ParkBox/internal/cache/rediscache"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/seed"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/BearBump/ParkBox/internal/storage/pgparking"
)

const (
	defaultEventsTopic  = "parking.transaction.events"
	defaultReceiptTopic = "parking.receipt.status"
)

type parkingAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     parkingAPIOpts
	api      *parking_api.ParkingAPI
	metrics  *metrics.Metrics
	svc      *parking.Service
	st       *pgparking.Storage
	consumer *kafka.Consumer
	producer *kafka.Producer
	cache    *rediscache.RedisCache
}

func mustBootstrapParkingAPI() *parkingAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	loc, err := cfg.Location()
	if err != nil {
		panic(err)
	}

	httpAddr := cfg.ParkBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ParkBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "parking-api"
	}
	eventsTopic := cfg.Kafka.TransactionEventsTopicName
	if eventsTopic == "" {
		eventsTopic = defaultEventsTopic
	}
	receiptTopic := cfg.Kafka.ReceiptStatusTopicName
	if receiptTopic == "" {
		receiptTopic = defaultReceiptTopic
	}
	snapshotTTL := time.Duration(cfg.ParkBox.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 10 * time.Minute
	}
	rlPerMin := cfg.ParkBox.RateLimitPerMinute
	if rlPerMin <= 0 {
		rlPerMin = 600
	}

	st := mustOpenPostgresWithRetry(cfg.PostgresDSN(), 60*time.Second)

	// Справочники из YAML: необязательный шаг, повторный запуск ничего не дублирует.
	if seedPath := os.Getenv("seedPath"); seedPath != "" {
		f, err := seed.Load(seedPath)
		if err != nil {
			panic(err)
		}
		if _, err := seed.Apply(context.Background(), st, f); err != nil {
			panic(err)
		}
	}

	rc := rediscache.New(cfg.RedisAddr())
	producer := kafka.NewProducer(cfg.KafkaBrokers())
	m := metrics.New()

	svc := parking.New(st, rc, snapshotTTL, parking.Config{
		MaxStayMinutes: cfg.ParkBox.MaxStayMinutes,
		Location:       loc,
		Publisher:      kafka.NewEventPublisher(producer, eventsTopic),
		Metrics:        m,
		Logger:         slog.Default(),
	})
	api := parking_api.New(svc, m).
		WithRateLimit(rediscache.NewRateLimiter(rc.Client()), rlPerMin)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers(), receiptTopic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &parkingAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: parkingAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         receiptTopic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		metrics:  m,
		svc:      svc,
		st:       st,
		consumer: consumer,
		producer: producer,
		cache:    rc,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgparking.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgparking.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *parkingAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.st != nil {
		a.st.Close()
	}
}

func (a *parkingAPIApp) Run() error {
	return runParkingAPI(a.ctx, a.opts, a.api, a.metrics, a.st, a.svc, a.consumer)
}
