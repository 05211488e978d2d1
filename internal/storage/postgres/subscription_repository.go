package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

type subscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository создаёт PostgreSQL-реализацию SubscriptionRepository.
func NewSubscriptionRepository(store *Store) domain.SubscriptionRepository {
	return &subscriptionRepository{db: store.DB()}
}

// Save создаёт подписку или перезаписывает её целиком.
func (r *subscriptionRepository) Save(sub domain.Subscription) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	identity, err := json.Marshal(sub.Identity)
	if err != nil {
		return fmt.Errorf("encode subscription identity: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, parent_order_id, payment_method, identity, vendor_subscription_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET parent_order_id = EXCLUDED.parent_order_id,
		    payment_method = EXCLUDED.payment_method,
		    identity = EXCLUDED.identity,
		    vendor_subscription_id = EXCLUDED.vendor_subscription_id,
		    updated_at = EXCLUDED.updated_at
	`,
		sub.ID, sub.ParentOrderID, string(sub.PaymentMethod), identity, sub.VendorSubscriptionID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) Get(id string) (domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, `
		SELECT id, parent_order_id, payment_method, identity, vendor_subscription_id
		FROM subscriptions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscription{}, domain.ErrSubscriptionNotFound
		}
		return domain.Subscription{}, fmt.Errorf("select subscription: %w", err)
	}
	return sub, nil
}

func (r *subscriptionRepository) ListByOrder(orderID string) ([]domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, parent_order_id, payment_method, identity, vendor_subscription_id
		FROM subscriptions
		WHERE parent_order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return result, nil
}

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var (
		sub      domain.Subscription
		method   string
		identity []byte
	)
	if err := row.Scan(&sub.ID, &sub.ParentOrderID, &method, &identity, &sub.VendorSubscriptionID); err != nil {
		return domain.Subscription{}, err
	}
	sub.PaymentMethod = domain.PaymentMethod(method)
	if err := json.Unmarshal(identity, &sub.Identity); err != nil {
		return domain.Subscription{}, fmt.Errorf("decode identity of subscription %s: %w", sub.ID, err)
	}
	return sub, nil
}

var _ domain.SubscriptionRepository = (*subscriptionRepository)(nil)
