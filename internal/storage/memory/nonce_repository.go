package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

type nonceRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Nonce
}

// NewNonceRepository создаёт in-memory реализацию NonceRepository.
func NewNonceRepository() domain.NonceRepository {
	return &nonceRepositoryInMemory{
		items: make(map[string]domain.Nonce),
	}
}

func (r *nonceRepositoryInMemory) Create(nonce domain.Nonce) error {
	nonce.Token = strings.TrimSpace(nonce.Token)
	if nonce.Token == "" {
		return domain.ErrNonceRequired
	}
	if nonce.CreatedAt.IsZero() {
		nonce.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[nonce.Token]; ok {
		return domain.ErrNonceInvalid
	}
	r.items[nonce.Token] = cloneNonce(nonce)
	return nil
}

// Consume атомарно проверяет и гасит токен. Вторая попытка получает ErrNonceInvalid.
func (r *nonceRepositoryInMemory) Consume(token, action string, now time.Time) (domain.Nonce, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Nonce{}, domain.ErrNonceRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, ok := r.items[token]
	if !ok || !nonce.Usable(action, now) {
		return domain.Nonce{}, domain.ErrNonceInvalid
	}

	usedAt := now
	nonce.UsedAt = &usedAt
	r.items[token] = nonce
	return cloneNonce(nonce), nil
}

func (r *nonceRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, nonce := range r.items {
		if nonce.ExpiresAt.After(before) {
			continue
		}

		delete(r.items, token)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

func cloneNonce(src domain.Nonce) domain.Nonce {
	dst := src
	if src.UsedAt != nil {
		t := *src.UsedAt
		dst.UsedAt = &t
	}
	return dst
}

var _ domain.NonceRepository = (*nonceRepositoryInMemory)(nil)
