package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ParkBox/internal/api/parking_api"
	"github.com/BearBump/ParkBox/internal/broker/kafka"
	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type parkingAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type receiptApplier interface {
	ApplyReceiptStatus(ctx context.Context, upd messages.ReceiptStatusUpdate) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runParkingAPI(ctx context.Context, opts parkingAPIOpts, api *parking_api.ParkingAPI, m *metrics.Metrics, db pinger, svc receiptApplier, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(api, m, db, opts.swaggerPath))
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.Consume(ctx, receiptStatusHandler(ctx, svc))
			if err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "topic", opts.topic, "error", err.Error())
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// receiptStatusHandler drops payloads that can never apply (malformed, unknown transaction)
// and stops on anything else so the message is redelivered.
func receiptStatusHandler(ctx context.Context, svc receiptApplier) func(key, value []byte) error {
	decode := kafka.ReceiptStatusHandler(func(upd messages.ReceiptStatusUpdate) error {
		err := svc.ApplyReceiptStatus(ctx, upd)
		if errors.Is(err, parking.ErrInvalidInput) || errors.Is(err, parking.ErrNotFound) {
			slog.Warn("receipt status: dropped", "transaction_id", upd.TransactionID, "error", err.Error())
			return kafka.ErrDrop
		}
		return err
	})
	return func(key, value []byte) error {
		err := decode(key, value)
		if errors.Is(err, kafka.ErrDrop) {
			slog.Warn("receipt status: skipped", "error", err.Error())
		}
		return err
	}
}

func newRouter(api *parking_api.ParkingAPI, m *metrics.Metrics, db pinger, swaggerPath string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"postgres unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Mount("/", api.Handler())
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(h, "parking-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	err := srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
