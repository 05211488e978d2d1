package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope OutboxEnvelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.OrderID != "100" || envelope.EventType != "OrderStatusChanged" {
			return fmt.Errorf("unexpected envelope %s", val)
		}
		if string(envelope.Payload) != `{"status":"paid"}` {
			return fmt.Errorf("payload changed: %s", envelope.Payload)
		}
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(mockProducer), "")
	require.Equal(t, TopicReconcileEvents, publisher.topic)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "100",
		EventType:     "OrderStatusChanged",
		Payload:       []byte(`{"status":"paid"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer), TopicDeadLetter)
	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", AggregateID: "101", EventType: "VendorOperationFailed"})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicReconcileEvents)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}))
}
