package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEventPublisher_KeyedByTransaction(t *testing.T) {
	wm := &writerMock{}
	pub := NewEventPublisher(newProducerWithWriter(wm), "parkbox.transaction-events")

	ev := messages.NewTransactionEvent(messages.EventEntryRecorded, &models.Transaction{
		ID: 42, Status: models.TransactionActive, PaymentStatus: models.PaymentPending, LicensePlate: "ABC-123",
	}, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	wm.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || msgs[0].Topic != "parkbox.transaction-events" || string(msgs[0].Key) != "42" {
			return false
		}
		var got messages.TransactionEvent
		if json.Unmarshal(msgs[0].Value, &got) != nil {
			return false
		}
		return got.EventID == ev.EventID && got.Type == messages.EventEntryRecorded && got.LicensePlate == "ABC-123"
	})).Return(nil).Once()

	require.NoError(t, pub.PublishTransactionEvent(context.Background(), ev))
	wm.AssertExpectations(t)
}
