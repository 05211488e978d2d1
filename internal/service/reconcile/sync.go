package reconcile

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

const (
	msgSyncDisabled  = "order sync is disabled"
	msgSyncNoVendor  = "order has no vendor order"
	msgSyncNoMapping = "status is not synchronized"
)

// syncOperations — какая операция у провайдера соответствует новому статусу заказа в магазине.
var syncOperations = map[domain.OrderStatus]domain.Operation{
	domain.OrderStatusCompleted: domain.OperationDeliver,
	domain.OrderStatusCancelled: domain.OperationCancel,
	domain.OrderStatusRefunded:  domain.OperationCredit,
}

// SyncStatus переносит смену статуса заказа в магазине на заказ у провайдера.
func (e *Engine) SyncStatus(ctx context.Context, orderID string, status domain.OrderStatus) (Outcome, error) {
	op, ok := syncOperations[status]
	if !ok {
		return noop(msgSyncNoMapping, status), nil
	}

	order, err := e.orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return Outcome{}, preconditionError(op, orderID, err, "")
		}
		return Outcome{}, err
	}

	set, ok := e.router.Resolve(string(order.PaymentMethod))
	if !ok {
		return noop(msgNoOperations, order.Status), nil
	}
	settings, ok := e.settings.Method(set.Method())
	switch {
	case !ok || settings.DisableOrderSync:
		return noop(msgSyncDisabled, order.Status), nil
	case !order.HasVendorOrder():
		return noop(msgSyncNoVendor, order.Status), nil
	case !set.Supports(op):
		return noop(msgNoOperations, order.Status), nil
	}

	e.logger.WithFields(log.Fields{
		"order_id":  orderID,
		"status":    status,
		"operation": op,
	}).Debug("syncing order status to vendor")

	return e.Reconcile(ctx, domain.Intent{
		Operation:     op,
		OrderID:       orderID,
		PaymentMethod: order.PaymentMethod,
	})
}
