package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/ParkBox/config"
	"github.com/BearBump/ParkBox/internal/broker/kafka"
	"github.com/BearBump/ParkBox/internal/cache/rediscache"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/BearBump/ParkBox/internal/services/sweeper"
	"github.com/BearBump/ParkBox/internal/storage/pgparking"
	"github.com/redis/go-redis/v9"
)

type workerFactories struct {
	newStorage   func(cfg *config.Config) (repo parking.Repository, closeFn func(), err error)
	newPublisher func(cfg *config.Config) (pub parking.Publisher, closeFn func())
	newGate      func(cfg *config.Config) (gate sweeper.Gate, closeFn func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (parking.Repository, func(), error) {
			st, err := pgparking.New(cfg.PostgresDSN())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newPublisher: func(cfg *config.Config) (parking.Publisher, func()) {
			topic := cfg.Kafka.TransactionEventsTopicName
			if topic == "" {
				topic = "parking.transaction.events"
			}
			p := kafka.NewProducer(cfg.KafkaBrokers())
			return kafka.NewEventPublisher(p, topic), func() { _ = p.Close() }
		},
		newGate: func(cfg *config.Config) (sweeper.Gate, func()) {
			c := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
			return rediscache.NewRateLimiter(c), func() { _ = c.Close() }
		},
	}
}

type workerSettings struct {
	pollInterval time.Duration
	batchSize    int
	paymentGrace time.Duration
}

func settingsFrom(cfg *config.Config) workerSettings {
	s := workerSettings{
		pollInterval: time.Duration(cfg.ParkBox.WorkerPollIntervalSeconds) * time.Second,
		batchSize:    cfg.ParkBox.WorkerBatchSize,
		paymentGrace: time.Duration(cfg.ParkBox.PaymentGraceMinutes) * time.Minute,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 30 * time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	return s
}

// RunParkingWorker runs the overdue sweeps until ctx is done. The HTTP side is started
// only when worker_http_addr is configured.
func RunParkingWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	set := settingsFrom(cfg)

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	pub, closePub := f.newPublisher(cfg)
	if closePub != nil {
		defer closePub()
	}
	gate, closeGate := f.newGate(cfg)
	if closeGate != nil {
		defer closeGate()
	}

	m := metrics.New()
	// Кэш снимков воркеру не нужен: он только двигает статусы пачками.
	svc := parking.New(repo, nil, 0, parking.Config{
		MaxStayMinutes: cfg.ParkBox.MaxStayMinutes,
		Location:       loc,
		Publisher:      pub,
		Metrics:        m,
		Logger:         slog.Default(),
	})
	sw := sweeper.New(svc, gate).WithSettings(set.pollInterval, set.batchSize, set.paymentGrace)

	if cfg.ParkBox.WorkerHTTPAddr != "" {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.ParkBox.WorkerHTTPAddr,
				swaggerPath: swaggerPath,
				sweeper:     sw,
				metrics:     m,
				cfg:         cfg,
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("worker http server stopped", "error", err.Error())
			}
		}()
	}

	slog.Info("parking worker started",
		"poll_interval", set.pollInterval.String(), "batch_size", set.batchSize,
		"payment_grace", set.paymentGrace.String(), "max_stay_min", svc.MaxStayMinutes())
	return sw.Run(ctx)
}
