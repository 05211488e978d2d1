package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/platform"
)

// Топики по умолчанию.
const (
	TopicReconcileEvents = "sveapay.reconcile.events"
	TopicOrderStatus     = "sveapay.platform.order-status"
	TopicDeadLetter      = "sveapay.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAttempts      = "x-attempts"
	HeaderOriginalTopic = "x-original-topic"
	HeaderError         = "x-error"
	HeaderFailedAt      = "x-failed-at"
)

// ErrMalformedEvent — сообщение не удалось разобрать; повтор не поможет.
var ErrMalformedEvent = errors.New("malformed kafka event")

// OutboxEnvelope — формат события согласования в топике.
type OutboxEnvelope struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

// OrderStatusEvent — смена статуса заказа на платформе.
type OrderStatusEvent struct {
	OrderID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	ChangedAt time.Time          `json:"changed_at,omitempty"`
}

// ParseOrderStatusEvent разбирает и проверяет событие смены статуса.
func ParseOrderStatusEvent(message *sarama.ConsumerMessage) (OrderStatusEvent, error) {
	var event OrderStatusEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return OrderStatusEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.OrderID = strings.TrimSpace(event.OrderID)
	if event.OrderID == "" {
		return OrderStatusEvent{}, fmt.Errorf("%w: order_id is empty", ErrMalformedEvent)
	}
	status, err := platform.ParseStatus(string(event.Status))
	if err != nil {
		return OrderStatusEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.Status = status
	return event, nil
}

func header(message *sarama.ConsumerMessage, key string) (string, bool) {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
