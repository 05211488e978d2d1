// Package cart передаёт платформе команду очистить корзину покупателя.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// EventCartClearRequested — событие, по которому платформа очищает корзину и сессию.
const EventCartClearRequested = "CartClearRequested"

// OutboxCart реализует domain.CartService через transactional outbox.
type OutboxCart struct {
	outbox domain.OutboxRepository
	now    func() time.Time
}

// NewOutboxCart создаёт сервис корзины поверх outbox.
func NewOutboxCart(outbox domain.OutboxRepository) *OutboxCart {
	return &OutboxCart{
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type clearRequested struct {
	OrderID string `json:"order_id"`
	TS      string `json:"ts"`
}

// Clear ставит в outbox запрос на очистку корзины заказа.
func (c *OutboxCart) Clear(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	payload, err := json.Marshal(clearRequested{
		OrderID: orderID,
		TS:      c.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}
	if _, err := c.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     EventCartClearRequested,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue cart event: %w", err)
	}
	return nil
}

var _ domain.CartService = (*OutboxCart)(nil)
