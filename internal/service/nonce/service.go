// Package nonce выдаёт и погашает одноразовые токены административных действий.
package nonce

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// DefaultTTL — срок жизни токена по умолчанию.
const DefaultTTL = 12 * time.Hour

// Service выдаёт токены и принимает каждый ровно один раз.
type Service struct {
	repo   domain.NonceRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewService создаёт сервис токенов. При ttl <= 0 используется DefaultTTL.
func NewService(repo domain.NonceRepository, ttl time.Duration, logger *log.Entry) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "nonce-service")
	}
	return &Service{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Issue выдаёт новый токен для действия.
func (s *Service) Issue(action string) (domain.Nonce, error) {
	if !domain.ValidNonceAction(action) {
		return domain.Nonce{}, fmt.Errorf("%w: unknown action %q", domain.ErrNonceInvalid, action)
	}
	now := s.now()
	n := domain.Nonce{
		Token:     uuid.NewString(),
		Action:    action,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(n); err != nil {
		return domain.Nonce{}, fmt.Errorf("store nonce: %w", err)
	}
	return n, nil
}

// Consume погашает токен. Чужое действие, истёкший или уже использованный токен: ErrNonceInvalid.
func (s *Service) Consume(token, action string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrNonceRequired
	}
	if _, err := uuid.Parse(token); err != nil {
		return domain.ErrNonceInvalid
	}

	if _, err := s.repo.Consume(token, action, s.now()); err != nil {
		if !errors.Is(err, domain.ErrNonceInvalid) {
			s.logger.WithError(err).WithField("action", action).Error("nonce consume failed")
		}
		return err
	}
	return nil
}
