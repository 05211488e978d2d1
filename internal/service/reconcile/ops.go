package reconcile

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
)

const (
	msgAllDelivered      = "All items have been delivered in Svea."
	msgAllCredited       = "All items have been credited in Svea."
	msgCancelled         = "The order has been cancelled in Svea."
	msgNoRowsToDeliver   = "There are no order rows to deliver"
	msgNoVendorRows      = "Couldn't find any order rows in Svea"
	msgDeliverFirst      = "You have to deliver the order at Svea first"
	msgInvoiceMissing    = "An invoice could not be found, deliver the order first"
	msgCardDelivered     = "Order has already been delivered"
	msgSubscriptionError = "Error occurred whilst processing subscription: %s"
)

func (s *session) ref(target domain.Target) domain.VendorRef {
	return domain.VendorRef{Target: target, OrderID: s.order.Meta.VendorOrderID}
}

func (s *session) query(ctx context.Context) (domain.VendorResponse, error) {
	return s.call(ctx, gateway.CallQuery, true, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
		return s.engine.vendor.Query(ctx, s.ref(target))
	})
}

func (s *session) sendDeliver(ctx context.Context, rowNumbers []int, distribution string) (domain.VendorResponse, error) {
	return s.call(ctx, gateway.CallDeliver, true, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
		return s.engine.vendor.Deliver(ctx, domain.DeliverRequest{
			VendorRef:        s.ref(target),
			RowNumbers:       rowNumbers,
			DistributionType: distribution,
		})
	})
}

func (s *session) sendCredit(ctx context.Context, req domain.CreditRequest) (domain.VendorResponse, error) {
	return s.call(ctx, gateway.CallCredit, true, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
		req.VendorRef = s.ref(target)
		return s.engine.vendor.Credit(ctx, req)
	})
}

// refreshFromVendor запрашивает строки заказа у провайдера и сохраняет их номера и счета.
func (s *session) refreshFromVendor(ctx context.Context) ([]string, error) {
	resp, err := s.query(ctx)
	if err != nil {
		return nil, s.failed(err)
	}
	var matched []string
	err = s.commit(func(o *domain.Order) domain.OrderStatus {
		matched = refreshRows(o, resp.Rows)
		return ""
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

// applyDelivered выставляет маркеры доставки; completed: только когда доставлено всё.
func (s *session) applyDelivered(ids []string, invoiceID string) (int, error) {
	var n int
	err := s.commit(func(o *domain.Order) domain.OrderStatus {
		n = markDelivered(o, ids, invoiceID, s.now())
		if o.AllDelivered() {
			return domain.OrderStatusCompleted
		}
		return ""
	})
	if err != nil {
		return 0, err
	}
	s.recordMarkers("delivered", n)
	return n, nil
}

// applyCredited выставляет маркеры возврата; refunded: только когда возвращено всё.
func (s *session) applyCredited(ids []string) (int, error) {
	var n int
	err := s.commit(func(o *domain.Order) domain.OrderStatus {
		n = markCredited(o, ids, s.now())
		if o.AllCredited() {
			return domain.OrderStatusRefunded
		}
		return ""
	})
	if err != nil {
		return 0, err
	}
	s.recordMarkers("credited", n)
	return n, nil
}

// deliverAll доставляет заказ целиком одним вызовом.
func (s *session) deliverAll(ctx context.Context, distribution string) (Outcome, error) {
	ids := itemIDs(s.pending(nil, domain.LineItem.Delivered))
	resp, err := s.sendDeliver(ctx, nil, distribution)
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	if _, err := s.applyDelivered(ids, resp.InvoiceID); err != nil {
		return Outcome{}, err
	}
	s.succeeded(msgAllDelivered)
	return s.outcome(msgAllDelivered, ids), nil
}

// creditWholeOrder возвращает весь заказ одной строкой (карта, прямой банковский платёж).
func (s *session) creditWholeOrder(ctx context.Context) (Outcome, error) {
	ids := itemIDs(s.pending(nil, domain.LineItem.Credited))
	_, err := s.sendCredit(ctx, domain.CreditRequest{Rows: []domain.VendorRow{creditOrderRow(s.order)}})
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	if _, err := s.applyCredited(ids); err != nil {
		return Outcome{}, err
	}
	s.succeeded(msgAllCredited)
	return s.outcome(msgAllCredited, ids), nil
}

// cancelVendorOrder аннулирует заказ у провайдера. Отказ провайдера (например, после доставки)
// возвращается без локальной проверки.
func (s *session) cancelVendorOrder(ctx context.Context) (Outcome, error) {
	_, err := s.call(ctx, gateway.CallCancel, true, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
		return s.engine.vendor.Cancel(ctx, s.ref(target))
	})
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	if err := s.setStatus(domain.OrderStatusCancelled); err != nil {
		return Outcome{}, err
	}
	s.succeeded(msgCancelled)
	return s.outcome(msgCancelled, nil), nil
}

// refundRows возвращает произвольную сумму строкой "Refund"; статус заказа не меняется.
func (s *session) refundRows(ctx context.Context, invoiceID string, amountMinor int64, reason string) (Outcome, error) {
	_, err := s.sendCredit(ctx, domain.CreditRequest{
		InvoiceID:        invoiceID,
		Rows:             []domain.VendorRow{refundRow(amountMinor, reason)},
		DistributionType: s.settings.DistributionType(s.order.BillingCountry),
	})
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	message := fmt.Sprintf("%s has been refunded in Svea.", formatAmount(amountMinor, s.order.Currency))
	s.succeeded(message)
	return s.outcome(message, nil), nil
}

// renewFailed переводит заказ продления в failed и сохраняет причину в заметке.
// Событие о сбое к этому моменту уже опубликовано.
func (s *session) renewFailed(err error) error {
	message := err.Error()
	if rerr, ok := AsError(err); ok {
		message = rerr.OperatorMessage()
	}
	if serr := s.setStatus(domain.OrderStatusFailed); serr != nil {
		s.logger.WithError(serr).Error("failed to mark renewal order as failed")
	}
	s.note(fmt.Sprintf(msgSubscriptionError, message))
	return err
}

func (s *session) outcome(message string, ids []string) Outcome {
	return Outcome{Message: message, Status: s.order.Status, Items: ids}
}

func itemsMessage(n int, verb string) string {
	if n == 1 {
		return fmt.Sprintf("%d item has been %s in Svea.", n, verb)
	}
	return fmt.Sprintf("%d items have been %s in Svea.", n, verb)
}

func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}
