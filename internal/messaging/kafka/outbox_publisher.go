package kafka

import (
	"encoding/json"
	"errors"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// OutboxTopicPublisher публикует события outbox в топик; ключ: идентификатор заказа.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт publisher для relay и для его DLQ.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicReconcileEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Publish реализует domain.OutboxPublisher.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	return p.producer.SendJSON(p.topic, key, OutboxEnvelope{
		ID:          event.ID,
		OrderID:     event.AggregateID,
		EventType:   event.EventType,
		Payload:     payload,
		PublishedAt: p.producer.now().UTC(),
	}, map[string]string{HeaderEventType: event.EventType})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
