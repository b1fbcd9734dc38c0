package messaging

import (
	"context"

	"github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/pkg/mq"
)

// KafkaEventPublisher emits loan lifecycle events onto the loan event
// topic, keyed by loan id so per-loan ordering survives partitioning.
type KafkaEventPublisher struct {
	producer *mq.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *mq.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.LoanEvent) error {
	return p.producer.Send(ctx, p.topic, event.LoanID, event)
}
