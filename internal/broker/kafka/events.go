package kafka

import (
	"context"

	"github.com/BearBump/ParkBox/internal/broker/messages"
)

// EventPublisher writes transaction events to one topic, keyed by transaction id.
type EventPublisher struct {
	p     *Producer
	topic string
}

func NewEventPublisher(p *Producer, topic string) *EventPublisher {
	return &EventPublisher{p: p, topic: topic}
}

func (e *EventPublisher) PublishTransactionEvent(ctx context.Context, ev messages.TransactionEvent) error {
	return e.p.PublishJSON(ctx, e.topic, ev.Key(), ev)
}
