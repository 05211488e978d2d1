package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

// StatusSyncer переносит смену статуса заказа на провайдера.
type StatusSyncer interface {
	SyncStatus(ctx context.Context, orderID string, status domain.OrderStatus) (reconcile.Outcome, error)
}

// StatusSyncHandler обрабатывает события смены статуса с платформы.
// Отказ провайдера и нарушенные предусловия не повторяются: повтор даст тот же ответ.
func StatusSyncHandler(syncer StatusSyncer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "lifecycle-consumer")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseOrderStatusEvent(message)
		if err != nil {
			return Permanent(err)
		}

		out, err := syncer.SyncStatus(ctx, event.OrderID, event.Status)
		if err != nil {
			if reconcile.IsKind(err, reconcile.KindPrecondition) || reconcile.IsKind(err, reconcile.KindVendorRejected) {
				return Permanent(err)
			}
			return err
		}

		logger.WithFields(log.Fields{
			"order_id": event.OrderID,
			"status":   event.Status,
			"noop":     out.NoOp,
			"result":   out.Message,
		}).Info("order status synced")
		return nil
	}
}
