package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/ParkBox/internal/api/parking_api"
	"github.com/BearBump/ParkBox/internal/broker/kafka"
	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/stretchr/testify/require"
)

// stubCoordinator answers GetByID; every other operation is not expected here.
type stubCoordinator struct {
	parking_api.Coordinator
}

func (stubCoordinator) GetByID(ctx context.Context, id uint64) (*parking.TransactionView, error) {
	return &parking.TransactionView{Transaction: &models.Transaction{
		ID:            id,
		LicensePlate:  "ABC123",
		Status:        models.TransactionActive,
		PaymentStatus: models.PaymentPending,
	}}, nil
}

type receiptFunc func(ctx context.Context, upd messages.ReceiptStatusUpdate) error

func (f receiptFunc) ApplyReceiptStatus(ctx context.Context, upd messages.ReceiptStatusUpdate) error {
	return f(ctx, upd)
}

type blockingConsumer struct {
	started chan struct{}
}

func (c *blockingConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	close(c.started)
	<-ctx.Done()
	return ctx.Err()
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRunParkingAPI_Serves(t *testing.T) {
	m := metrics.New()
	api := parking_api.New(stubCoordinator{}, m)
	consumer := &blockingConsumer{started: make(chan struct{})}

	addrCh := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runParkingAPI(ctx, parkingAPIOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: writeSwagger(t),
			topic:       "receipts",
			onListen:    func(addr string) { addrCh <- addr },
		}, api, m, nil, receiptFunc(func(context.Context, messages.ReceiptStatusUpdate) error { return nil }), consumer)
	}()

	var base string
	select {
	case addr := <-addrCh:
		base = "http://" + addr
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}
	select {
	case <-consumer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not start")
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	code, body := get(t, base+"/swagger.json")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"swagger"`)

	code, body = get(t, base+"/api/v1/transactions/42")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"license_plate":"ABC123"`)

	code, _ = get(t, base+"/readyz")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "parkbox_http_requests_total")

	cancel()
	select {
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case <-done:
	}
}

func TestRunParkingAPI_RequiresSwagger(t *testing.T) {
	err := runParkingAPI(context.Background(), parkingAPIOpts{httpAddr: "127.0.0.1:0"}, nil, nil, nil, nil, nil)
	require.Error(t, err)

	err = runParkingAPI(context.Background(), parkingAPIOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	}, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestReceiptStatusHandler(t *testing.T) {
	var got messages.ReceiptStatusUpdate
	var result error
	h := receiptStatusHandler(context.Background(), receiptFunc(func(_ context.Context, upd messages.ReceiptStatusUpdate) error {
		got = upd
		return result
	}))

	require.NoError(t, h(nil, []byte(`{"transaction_id":7,"channel":"EMAIL","status":"DELIVERED"}`)))
	require.Equal(t, uint64(7), got.TransactionID)
	require.Equal(t, "DELIVERED", got.Status)

	require.ErrorIs(t, h(nil, []byte(`not json`)), kafka.ErrDrop)

	result = parking.ErrInvalidInput
	require.ErrorIs(t, h(nil, []byte(`{"transaction_id":7}`)), kafka.ErrDrop)

	result = parking.ErrNotFound
	require.ErrorIs(t, h(nil, []byte(`{"transaction_id":8,"status":"SENT"}`)), kafka.ErrDrop)

	result = errors.New("db down")
	err := h(nil, []byte(`{"transaction_id":7,"status":"SENT"}`))
	require.EqualError(t, err, "db down")
}
