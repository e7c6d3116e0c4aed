package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrDrop marks a message the handler can never process (bad payload, unknown id).
// It is committed and skipped instead of stopping the consumer.
var ErrDrop = errors.New("drop message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads delivery results for receipts (parking.receipt.status) in a consumer group.
// A message is committed once its handler succeeds or drops it.
type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume blocks until ctx ends or a handler fails with anything other than ErrDrop.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil && !errors.Is(err, ErrDrop) {
			// Важно: commit делаем только при успехе, иначе потеряем сообщение.
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ReceiptStatusHandler decodes receipt delivery updates. Malformed payloads are dropped
// without reaching apply.
func ReceiptStatusHandler(apply func(upd messages.ReceiptStatusUpdate) error) func(key, value []byte) error {
	return func(_ []byte, value []byte) error {
		var upd messages.ReceiptStatusUpdate
		if err := json.Unmarshal(value, &upd); err != nil {
			return errors.Wrapf(ErrDrop, "decode receipt status: %v", err)
		}
		return apply(upd)
	}
}
