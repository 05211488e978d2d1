package reconcile

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/messages"
)

const (
	opStrongAuth = "strong_auth"

	msgStrongAuthNotPending = "strong authentication is not pending"
	msgStrongAuthConfirmed  = "Customer completed identification in Svea."
	msgStrongAuthRejected   = "Customer identification in Svea was rejected."

	vendorStatusActive = "Active"
)

// FinishStrongAuth завершает оплату после успешной идентификации покупателя.
// Вне pending со строгой аутентификацией: NoOp.
func (e *Engine) FinishStrongAuth(ctx context.Context, orderID string) (Outcome, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()
	return e.strongAuth(orderID, func(s *session) (Outcome, error) {
		return s.finishStrongAuth(ctx)
	})
}

// RejectStrongAuth отменяет заказ локально после отказа в идентификации.
func (e *Engine) RejectStrongAuth(ctx context.Context, orderID string) (Outcome, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()
	return e.strongAuth(orderID, func(s *session) (Outcome, error) {
		return s.rejectStrongAuth()
	})
}

// CheckStrongAuth запрашивает статус заказа у провайдера и завершает или отменяет его.
// Сбой транспорта или ошибка настроек оставляет заказ без изменений.
func (e *Engine) CheckStrongAuth(ctx context.Context, orderID string) (Outcome, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()
	return e.strongAuth(orderID, func(s *session) (Outcome, error) {
		resp, err := s.query(ctx)
		switch {
		case IsKind(err, KindTransport), IsKind(err, KindPrecondition):
			return Outcome{}, err
		case err == nil && resp.OrderStatus == vendorStatusActive && strings.TrimSpace(resp.PendingReasons) == "":
			return s.finishStrongAuth(ctx)
		default:
			s.logger.WithFields(log.Fields{
				"vendor_status":   resp.OrderStatus,
				"pending_reasons": resp.PendingReasons,
			}).Info("strong authentication not completed")
			return s.rejectStrongAuth()
		}
	})
}

func (e *Engine) strongAuth(orderID string, fn func(s *session) (Outcome, error)) (Outcome, error) {
	s, out, err := e.open(domain.OperationCreate, orderID, "")
	if s == nil {
		e.record("", opStrongAuth, out, err)
		return out, err
	}
	if s.order.Status != domain.OrderStatusPending || !s.order.Meta.StrongAuthPending {
		out := noop(msgStrongAuthNotPending, s.order.Status)
		out.RedirectURL = e.links.OrderReceived(s.order)
		e.record(string(s.set.Method()), opStrongAuth, out, nil)
		return out, nil
	}
	out, err = fn(s)
	e.record(string(s.set.Method()), opStrongAuth, out, err)
	return out, err
}

func (s *session) finishStrongAuth(ctx context.Context) (Outcome, error) {
	err := s.commit(func(o *domain.Order) domain.OrderStatus {
		o.Meta.StrongAuthPending = false
		return domain.OrderStatusPaid
	})
	if err != nil {
		return Outcome{}, err
	}
	s.clearCart(ctx)
	s.mirrorIdentity()
	s.succeeded(msgStrongAuthConfirmed)
	return s.paidOutcome(), nil
}

func (s *session) rejectStrongAuth() (Outcome, error) {
	err := s.commit(func(o *domain.Order) domain.OrderStatus {
		o.Meta.StrongAuthPending = false
		return domain.OrderStatusCancelled
	})
	if err != nil {
		return Outcome{}, err
	}
	s.note(msgStrongAuthRejected)
	return Outcome{
		Message:     s.engine.catalog.ForCode(s.settings.Language, messages.CodeStrongAuthRejected),
		RedirectURL: s.engine.links.Checkout(),
		Status:      s.order.Status,
	}, nil
}
