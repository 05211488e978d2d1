package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

type subscriptionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Subscription
}

// NewSubscriptionRepository создаёт in-memory реализацию SubscriptionRepository.
func NewSubscriptionRepository() domain.SubscriptionRepository {
	return &subscriptionRepositoryInMemory{items: make(map[string]domain.Subscription)}
}

func (r *subscriptionRepositoryInMemory) Save(sub domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[sub.ID] = sub
	return nil
}

func (r *subscriptionRepositoryInMemory) Get(id string) (domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.items[id]
	if !ok {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *subscriptionRepositoryInMemory) ListByOrder(orderID string) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Subscription, 0)
	for _, sub := range r.items {
		if sub.ParentOrderID == orderID {
			result = append(result, sub)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ domain.SubscriptionRepository = (*subscriptionRepositoryInMemory)(nil)
