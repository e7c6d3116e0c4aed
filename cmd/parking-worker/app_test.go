package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParkBox/config"
	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/BearBump/ParkBox/internal/services/sweeper"
	"github.com/stretchr/testify/require"
)

// sweepRepo implements only the sweep queries; nothing else is reachable from the worker.
type sweepRepo struct {
	parking.Repository

	mu      sync.Mutex
	claims  int
	overdue []*models.Transaction
}

func (r *sweepRepo) ClaimOverdueStays(ctx context.Context, enteredBefore, now time.Time, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims++
	return nil, nil
}

func (r *sweepRepo) MarkOverduePayments(ctx context.Context, exitedBefore, now time.Time, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.overdue
	r.overdue = nil
	return out, nil
}

func (r *sweepRepo) claimCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claims
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []messages.TransactionEvent
}

func (p *recordingPublisher) PublishTransactionEvent(ctx context.Context, ev messages.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testFactories(repo parking.Repository, pub parking.Publisher, closed *bool) workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (parking.Repository, func(), error) {
			return repo, func() { *closed = true }, nil
		},
		newPublisher: func(cfg *config.Config) (parking.Publisher, func()) {
			return pub, nil
		},
		newGate: func(cfg *config.Config) (sweeper.Gate, func()) {
			return nil, nil
		},
	}
}

func TestDefaultWorkerFactories_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	pub, closePub := f.newPublisher(cfg)
	require.NotNil(t, pub)
	closePub()

	gate, closeGate := f.newGate(cfg)
	require.NotNil(t, gate)
	closeGate()
}

func TestSettingsFrom(t *testing.T) {
	s := settingsFrom(&config.Config{})
	require.Equal(t, 30*time.Second, s.pollInterval)
	require.Equal(t, 100, s.batchSize)
	require.Zero(t, s.paymentGrace)

	s = settingsFrom(&config.Config{ParkBox: config.ParkBoxConfig{
		WorkerPollIntervalSeconds: 5,
		WorkerBatchSize:           10,
		PaymentGraceMinutes:       1440,
	}})
	require.Equal(t, 5*time.Second, s.pollInterval)
	require.Equal(t, 10, s.batchSize)
	require.Equal(t, 24*time.Hour, s.paymentGrace)
}

func TestRunParkingWorker_ContextCanceled(t *testing.T) {
	closed := false
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunParkingWorker(ctx, &config.Config{}, testFactories(&sweepRepo{}, &recordingPublisher{}, &closed), "")
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, closed)
}

func TestRunParkingWorker_BadTimeZone(t *testing.T) {
	closed := false
	cfg := &config.Config{ParkBox: config.ParkBoxConfig{TimeZone: "Mars/Olympus"}}
	err := RunParkingWorker(context.Background(), cfg, testFactories(&sweepRepo{}, &recordingPublisher{}, &closed), "")
	require.Error(t, err)
	require.False(t, closed)
}

func TestRunParkingWorker_SweepsAndPublishes(t *testing.T) {
	exit := time.Now().UTC().Add(-48 * time.Hour)
	repo := &sweepRepo{overdue: []*models.Transaction{{
		ID:            9,
		LicensePlate:  "ABC123",
		Status:        models.TransactionCompleted,
		PaymentStatus: models.PaymentOverdue,
		ExitTime:      &exit,
	}}}
	pub := &recordingPublisher{}
	closed := false
	cfg := &config.Config{ParkBox: config.ParkBoxConfig{
		WorkerPollIntervalSeconds: 1,
		PaymentGraceMinutes:       60,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunParkingWorker(ctx, cfg, testFactories(repo, pub, &closed), "") }()

	require.Eventually(t, func() bool {
		return repo.claimCount() >= 1 && pub.count() == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.True(t, closed)
}

func TestWorkerHTTP(t *testing.T) {
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	repo := &sweepRepo{}
	svc := parking.New(repo, nil, 0, parking.Config{Publisher: &recordingPublisher{}})
	s := sweeper.New(svc, nil).WithSettings(time.Hour, 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	addrCh := make(chan string, 1)
	go func() {
		_ = runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(addr string) { addrCh <- addr },
			sweeper:     s,
			metrics:     metrics.New(),
			cfg:         &config.Config{ParkBox: config.ParkBoxConfig{MaxStayMinutes: 480}},
		})
	}()
	base := "http://" + <-addrCh

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return repo.claimCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var st sweeper.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	_ = resp.Body.Close()
	require.Equal(t, int64(1), st.TotalCycles)
	require.NotNil(t, st.LastTriggerAt)

	resp, err = http.Get(base + "/config")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(body), `"maxStayMinutes":480`)
	require.NotContains(t, string(body), "password")

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/swagger.json"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestWorkerHTTP_RequiresSwagger(t *testing.T) {
	err := runWorkerHTTPServer(context.Background(), workerHTTPOpts{httpAddr: "127.0.0.1:0"})
	require.Error(t, err)
}
