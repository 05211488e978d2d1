package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если ID занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
	// ListStrongAuthPending возвращает заказы в ожидании строгой аутентификации.
	ListStrongAuthPending(limit int) ([]Order, error)
}

// SubscriptionRepository хранит подписки и зеркалированные идентификационные поля.
type SubscriptionRepository interface {
	Save(sub Subscription) error
	Get(id string) (Subscription, error)
	ListByOrder(orderID string) ([]Subscription, error)
}

// NonceRepository хранит одноразовые токены административных действий.
type NonceRepository interface {
	Create(nonce Nonce) error
	// Consume помечает токен использованным; повторное использование: ErrNonceInvalid.
	Consume(token, action string, now time.Time) (Nonce, error)
	DeleteExpired(before time.Time, limit int) (int, error)
}

// TimelineRepository хранит заметки жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// CartService очищает корзину/сессию покупателя на стороне платформы.
type CartService interface {
	Clear(ctx context.Context, orderID string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
