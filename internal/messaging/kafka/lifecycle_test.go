package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

type stubSyncer struct {
	orderID string
	status  domain.OrderStatus
	err     error
}

func (s *stubSyncer) SyncStatus(_ context.Context, orderID string, status domain.OrderStatus) (reconcile.Outcome, error) {
	s.orderID, s.status = orderID, status
	if s.err != nil {
		return reconcile.Outcome{}, s.err
	}
	return reconcile.Outcome{Message: "All items have been delivered in Svea.", Status: domain.OrderStatusCompleted}, nil
}

func TestStatusSyncHandler(t *testing.T) {
	syncer := &stubSyncer{}
	handler := StatusSyncHandler(syncer, nil)

	err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"order_id":"100","status":"completed"}`)})
	require.NoError(t, err)
	require.Equal(t, "100", syncer.orderID)
	require.Equal(t, domain.OrderStatusCompleted, syncer.status)
}

func TestStatusSyncHandler_ErrorClassification(t *testing.T) {
	rejected := &reconcile.Error{Kind: reconcile.KindVendorRejected, Op: domain.OperationDeliver, OrderID: "100", ResultCode: 24000}
	precondition := &reconcile.Error{Kind: reconcile.KindPrecondition, Op: domain.OperationCredit, OrderID: "100", Err: domain.ErrNotYetDelivered}
	transport := &reconcile.Error{Kind: reconcile.KindTransport, Op: domain.OperationDeliver, OrderID: "100", Err: errors.New("timeout")}

	tests := []struct {
		name      string
		value     string
		err       error
		permanent bool
	}{
		{name: "malformed", value: `{"status":"completed"}`, permanent: true},
		{name: "vendor rejected", value: `{"order_id":"100","status":"completed"}`, err: rejected, permanent: true},
		{name: "precondition", value: `{"order_id":"100","status":"refunded"}`, err: precondition, permanent: true},
		{name: "transport", value: `{"order_id":"100","status":"completed"}`, err: transport, permanent: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := StatusSyncHandler(&stubSyncer{err: tt.err}, nil)
			err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(tt.value)})
			require.Error(t, err)
			require.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}
