package reconcile

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

type invoiceOperations struct {
	capabilities
}

// NewInvoiceOperations — операции оплаты по счёту.
func NewInvoiceOperations() OperationSet {
	return invoiceOperations{capabilities: capabilities{
		domain.OperationCreate:       true,
		domain.OperationDeliver:      true,
		domain.OperationCredit:       true,
		domain.OperationCancel:       true,
		domain.OperationRefundAmount: true,
		domain.OperationRenew:        true,
	}}
}

func (invoiceOperations) Method() domain.PaymentMethod { return domain.PaymentMethodInvoice }
func (invoiceOperations) Family() domain.OrderFamily   { return domain.FamilyInvoice }

func (invoiceOperations) create(ctx context.Context, s *session) (Outcome, error) {
	if s.zeroTotalSubscription() {
		return s.completeZeroTotal(ctx)
	}
	return s.createWebService(ctx, s.settings.UsesStrongAuth(s.order.BillingCountry), nil)
}

func (invoiceOperations) deliver(ctx context.Context, s *session, requested []string) (Outcome, error) {
	distribution := s.settings.DistributionType(s.order.BillingCountry)
	if len(requested) > 0 {
		return deliverInvoiceRows(ctx, s, requested, distribution)
	}

	// Ничего не доставлялось: заказ целиком, иначе оставшиеся строки по номерам.
	if !s.order.AnyDelivered() {
		return s.deliverAll(ctx, distribution)
	}
	remaining := s.pending(nil, domain.LineItem.Delivered)
	numbers, ok := rowNumbers(remaining)
	if !ok {
		if _, err := s.refreshFromVendor(ctx); err != nil {
			return Outcome{}, err
		}
		remaining = s.pending(nil, domain.LineItem.Delivered)
		if numbers, ok = rowNumbers(remaining); !ok {
			return Outcome{}, s.failed(s.precondition(domain.ErrNothingToDeliver, msgNoRowsToDeliver))
		}
	}

	ids := itemIDs(remaining)
	resp, err := s.sendDeliver(ctx, numbers, distribution)
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	if _, err := s.applyDelivered(ids, resp.InvoiceID); err != nil {
		return Outcome{}, err
	}
	s.succeeded(msgAllDelivered)
	return s.outcome(msgAllDelivered, ids), nil
}

// deliverInvoiceRows доставляет выбранные позиции: номера строк берутся из свежего запроса к провайдеру,
// уже доставленные и возвращённые позиции не отправляются.
func deliverInvoiceRows(ctx context.Context, s *session, requested []string, distribution string) (Outcome, error) {
	matched, err := s.refreshFromVendor(ctx)
	if err != nil {
		return Outcome{}, err
	}
	onVendor := make(map[string]bool, len(matched))
	for _, id := range matched {
		onVendor[id] = true
	}

	var targets []domain.LineItem
	for _, item := range s.pending(requested, domain.LineItem.Delivered) {
		if onVendor[item.ID] && !item.Credited() && item.VendorRowNumber > 0 {
			targets = append(targets, item)
		}
	}
	if len(targets) == 0 {
		return Outcome{}, s.failed(s.precondition(domain.ErrNothingToDeliver, msgNoRowsToDeliver))
	}

	numbers, _ := rowNumbers(targets)
	ids := itemIDs(targets)
	resp, err := s.sendDeliver(ctx, numbers, distribution)
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	n, err := s.applyDelivered(ids, resp.InvoiceID)
	if err != nil {
		return Outcome{}, err
	}
	message := itemsMessage(n, "delivered")
	s.succeeded(message)
	return s.outcome(message, ids), nil
}

// credit возвращает позиции по группам счетов: по вызову на группу, маркеры фиксируются после каждой.
// Первая неудачная группа останавливает возврат, предыдущие группы остаются возвращены.
func (invoiceOperations) credit(ctx context.Context, s *session, requested []string) (Outcome, error) {
	targets := s.pending(requested, domain.LineItem.Credited)
	for _, item := range targets {
		if item.VendorInvoiceID == "" {
			return Outcome{}, s.failed(s.precondition(domain.ErrNotYetDelivered, msgInvoiceMissing))
		}
	}
	if _, ok := rowNumbers(targets); !ok {
		if _, err := s.refreshFromVendor(ctx); err != nil {
			return Outcome{}, err
		}
		targets = s.pending(requested, domain.LineItem.Credited)
		if _, ok := rowNumbers(targets); !ok {
			return Outcome{}, s.failed(s.precondition(domain.ErrNotYetDelivered, msgNoVendorRows))
		}
	}

	distribution := s.settings.DistributionType(s.order.BillingCountry)
	groups := groupByInvoice(targets)
	credited := make([]string, 0, len(targets))
	total := 0
	for idx, group := range groups {
		numbers, _ := rowNumbers(group.items)
		_, err := s.sendCredit(ctx, domain.CreditRequest{
			InvoiceID:        group.invoiceID,
			RowNumbers:       numbers,
			DistributionType: distribution,
		})
		if err != nil {
			if rerr, ok := AsError(err); ok {
				rerr.Group = idx + 1
			}
			s.logger.WithFields(log.Fields{
				"invoice_id": group.invoiceID,
				"group":      idx + 1,
				"groups":     len(groups),
			}).Warn("invoice group credit failed")
			return Outcome{}, s.failed(err)
		}

		ids := itemIDs(group.items)
		n, err := s.applyCredited(ids)
		if err != nil {
			return Outcome{}, err
		}
		total += n
		credited = append(credited, ids...)
	}

	message := itemsMessage(total, "credited")
	if len(requested) == 0 && s.order.AllCredited() {
		message = msgAllCredited
	}
	s.succeeded(message)
	return s.outcome(message, credited), nil
}

func (invoiceOperations) cancel(ctx context.Context, s *session) (Outcome, error) {
	return s.cancelVendorOrder(ctx)
}

// refundAmount возвращает сумму по первому счёту заказа.
func (invoiceOperations) refundAmount(ctx context.Context, s *session, amountMinor int64, reason string) (Outcome, error) {
	resp, err := s.query(ctx)
	if err != nil {
		return Outcome{}, s.failed(err)
	}
	if len(resp.Rows) == 0 {
		return Outcome{}, s.failed(s.precondition(domain.ErrNotYetDelivered, msgNoVendorRows))
	}
	invoiceID := resp.Rows[0].InvoiceID
	if invoiceID == "" {
		return Outcome{}, s.failed(s.precondition(domain.ErrNotYetDelivered, msgDeliverFirst))
	}
	return s.refundRows(ctx, invoiceID, amountMinor, reason)
}

// renew выставляет новый счёт по заказу продления с идентичностью из подписки.
func (invoiceOperations) renew(ctx context.Context, s *session, sub domain.Subscription, _ int64) (Outcome, error) {
	if s.order.TotalMinor == 0 {
		return s.completeZeroTotal(ctx)
	}
	customer := s.order.Customer.WithIdentity(sub.Identity)
	out, err := s.createWebService(ctx, false, func(req *domain.CreateRequest) {
		req.Customer = customer
	})
	if err != nil {
		return Outcome{}, s.renewFailed(err)
	}
	return out, nil
}
