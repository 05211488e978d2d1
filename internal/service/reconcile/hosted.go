package reconcile

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
)

const opHostedCallback = "hosted_callback"

// HostedPayment — параметры возврата покупателя (или уведомления провайдера) с hosted-страницы.
type HostedPayment struct {
	OrderID string
	Key     string
	// Token — подписанный ответ провайдера из параметра response.
	Token    string
	ClientIP string
}

// HostedCallback разбирает ответ hosted-страницы и завершает оплату.
// Повторный callback по уже оплаченному заказу: NoOp с адресом страницы подтверждения.
func (e *Engine) HostedCallback(ctx context.Context, p HostedPayment) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.hosted_callback", trace.WithAttributes(
		attribute.String("order.id", p.OrderID),
	))
	defer span.End()

	unlock := e.locks.Lock(p.OrderID)
	defer unlock()

	out, method, err := e.withHostedSession(p.OrderID, func(s *session) (Outcome, error) {
		if s.order.Key != p.Key {
			return Outcome{}, s.precondition(domain.ErrOrderKeyInvalid, "")
		}
		if done, ok := s.alreadyPaid(); ok {
			return done, nil
		}
		resp, err := s.call(ctx, gateway.CallHostedResponse, false, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
			return e.vendor.ParseHostedResponse(ctx, domain.HostedResponseRequest{Target: target, Token: p.Token})
		})
		if err != nil {
			return Outcome{RedirectURL: e.links.Checkout()}, s.paymentFailed(err)
		}
		return s.completeHosted(ctx, resp, p.ClientIP)
	})

	e.record(method, opHostedCallback, out, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// CompleteHostedPayment применяет уже разобранный ответ провайдера к заказу.
func (e *Engine) CompleteHostedPayment(ctx context.Context, orderID string, resp domain.VendorResponse) (Outcome, error) {
	unlock := e.locks.Lock(orderID)
	defer unlock()

	out, method, err := e.withHostedSession(orderID, func(s *session) (Outcome, error) {
		if done, ok := s.alreadyPaid(); ok {
			return done, nil
		}
		if !resp.Accepted {
			return Outcome{RedirectURL: e.links.Checkout()}, s.paymentFailed(rejectedError(s.op, orderID, resp))
		}
		return s.completeHosted(ctx, resp, "")
	})
	e.record(method, opHostedCallback, out, err)
	return out, err
}

func (e *Engine) withHostedSession(orderID string, fn func(s *session) (Outcome, error)) (Outcome, string, error) {
	s, out, err := e.open(domain.OperationCreate, orderID, "")
	if s == nil {
		return out, "", err
	}
	method := string(s.set.Method())
	switch s.set.Family() {
	case domain.FamilyCard, domain.FamilyDirectBank:
	default:
		return Outcome{}, method, s.unsupported()
	}
	out, err = fn(s)
	return out, method, err
}

// alreadyPaid: оплата уже применена, у заказа есть vendor_order_id.
// Без идентификатора ответ провайдера разбирается при любом статусе, иначе списание потеряется.
func (s *session) alreadyPaid() (Outcome, bool) {
	if !s.order.HasVendorOrder() {
		return Outcome{}, false
	}
	out := noop(msgAlreadyPaid, s.order.Status)
	out.RedirectURL = s.engine.links.OrderReceived(s.order)
	return out, true
}

func (s *session) completeHosted(ctx context.Context, resp domain.VendorResponse, clientIP string) (Outcome, error) {
	if resp.TransactionID == "" {
		err := transportError(s.op, s.order.ID, domain.ErrVendorResponseInvalid)
		return Outcome{RedirectURL: s.engine.links.Checkout()}, s.paymentFailed(err)
	}

	previous := s.order.Status
	err := s.commit(func(o *domain.Order) domain.OrderStatus {
		o.Meta.VendorOrderID = resp.TransactionID
		if resp.SubscriptionID != "" {
			o.Meta.VendorSubscriptionID = resp.SubscriptionID
		}
		assignRowNumbers(o)
		return ""
	})
	if err != nil {
		return Outcome{}, err
	}
	if resp.SubscriptionID != "" {
		s.updateSubscriptions(func(sub *domain.Subscription) {
			sub.PaymentMethod = s.set.Method()
			sub.VendorSubscriptionID = resp.SubscriptionID
		})
	}
	if clientIP != "" {
		s.note(fmt.Sprintf("Order was completed by client on IP: %s", clientIP))
	}
	switch previous {
	case domain.OrderStatusPending, domain.OrderStatusFailed:
	default:
		s.note(fmt.Sprintf("Svea payment %s was received while the order was %s. Review the order.", resp.TransactionID, previous))
		s.logger.WithFields(log.Fields{
			"vendor_order_id": resp.TransactionID,
			"status":          previous,
		}).Warn("hosted payment received for order outside pending")
	}

	if err := s.completePayment(ctx); err != nil {
		return Outcome{}, err
	}
	s.succeeded(msgPaymentComplete)
	return s.paidOutcome(), nil
}
