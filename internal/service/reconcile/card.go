package reconcile

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
)

// Типы подписки карточной оплаты.
const (
	subscriptionRecurringCapture = "RECURRINGCAPTURE"
	subscriptionRecurring        = "RECURRING"
)

// Статусы карточной транзакции, при которых списание уже подтверждено.
var cardConfirmedStatuses = []string{"SUCCESS", "CONFIRMED"}

type cardOperations struct {
	capabilities
}

// NewCardOperations — операции карточной оплаты через hosted-страницу.
func NewCardOperations() OperationSet {
	return cardOperations{capabilities: capabilities{
		domain.OperationCreate:       true,
		domain.OperationDeliver:      true,
		domain.OperationCredit:       true,
		domain.OperationCancel:       true,
		domain.OperationRefundAmount: true,
		domain.OperationRenew:        true,
	}}
}

func (cardOperations) Method() domain.PaymentMethod { return domain.PaymentMethodCard }
func (cardOperations) Family() domain.OrderFamily   { return domain.FamilyCard }

func (cardOperations) create(ctx context.Context, s *session) (Outcome, error) {
	return s.createHosted(ctx, func(req *domain.CreateRequest) {
		if !s.order.IsSubscription() {
			return
		}
		req.SubscriptionType = subscriptionRecurringCapture
		if s.order.TotalMinor == 0 {
			// Подписка без первого платежа: резервируем минимальную сумму.
			req.SubscriptionType = subscriptionRecurring
			req.Rows = []domain.VendorRow{{
				RowNumber:           1,
				Name:                "Subscription reservation",
				Quantity:            1,
				UnitPriceExVatMinor: reservationAmountMinor,
			}}
		}
	})
}

// deliver подтверждает списание целиком; выбор позиций для карты не поддерживается.
func (cardOperations) deliver(ctx context.Context, s *session, _ []string) (Outcome, error) {
	resp, err := s.query(ctx)
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	if cardConfirmed(resp.OrderStatus) {
		if s.order.Status == domain.OrderStatusCompleted {
			return noop(msgCardDelivered, s.order.Status), nil
		}
		ids := itemIDs(s.pending(nil, domain.LineItem.Delivered))
		if _, err := s.applyDelivered(ids, ""); err != nil {
			return Outcome{}, err
		}
		s.note(msgCardDelivered)
		return s.outcome(msgAllDelivered, ids), nil
	}
	return s.deliverAll(ctx, "")
}

func cardConfirmed(status string) bool {
	for _, confirmed := range cardConfirmedStatuses {
		if strings.EqualFold(status, confirmed) {
			return true
		}
	}
	return false
}

func (cardOperations) credit(ctx context.Context, s *session, _ []string) (Outcome, error) {
	return s.creditWholeOrder(ctx)
}

func (cardOperations) cancel(ctx context.Context, s *session) (Outcome, error) {
	return s.cancelVendorOrder(ctx)
}

func (cardOperations) refundAmount(ctx context.Context, s *session, amountMinor int64, reason string) (Outcome, error) {
	return s.refundRows(ctx, "", amountMinor, reason)
}

// renew списывает продление по сохранённой подписке провайдера.
func (cardOperations) renew(ctx context.Context, s *session, sub domain.Subscription, amountMinor int64) (Outcome, error) {
	subscriptionID := sub.VendorSubscriptionID
	if subscriptionID == "" {
		err := s.failed(s.precondition(domain.ErrSubscriptionMissing, ""))
		return Outcome{}, s.renewFailed(err)
	}
	if err := s.beginAttempt(); err != nil {
		return Outcome{}, err
	}

	resp, err := s.call(ctx, gateway.CallRecur, true, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
		return s.engine.vendor.Recur(ctx, domain.RecurRequest{
			Target:            target,
			Currency:          s.order.Currency,
			SubscriptionID:    subscriptionID,
			ClientOrderNumber: s.order.ClientOrderNumber(),
			AmountMinor:       amountMinor,
			Rows:              vendorRows(s.order.Items),
		})
	})
	if err != nil {
		return Outcome{}, s.renewFailed(s.failed(err))
	}
	if resp.TransactionID == "" {
		return Outcome{}, s.renewFailed(s.failed(transportError(s.op, s.order.ID, domain.ErrVendorResponseInvalid)))
	}

	err = s.commit(func(o *domain.Order) domain.OrderStatus {
		o.Meta.VendorOrderID = resp.TransactionID
		o.Meta.VendorSubscriptionID = subscriptionID
		assignRowNumbers(o)
		return ""
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := s.completePayment(ctx); err != nil {
		return Outcome{}, err
	}
	s.succeeded(msgPaymentComplete)
	return s.paidOutcome(), nil
}
