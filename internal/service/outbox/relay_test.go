package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
	"github.com/vladislavdragonenkov/sveapay/internal/storage/memory"
)

func newTestRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Relay {
	options = append([]Option{
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
		WithBackoff(0),
	}, options...)
	return NewRelay(repo, publisher, options...)
}

func enqueue(t *testing.T, repo domain.OutboxRepository, orderID, eventType, payload string) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(payload),
	})
	require.NoError(t, err)
	return msg
}

func TestRelayFlushPublishesInOrder(t *testing.T) {
	repo := memory.NewOutboxRepository()
	first := enqueue(t, repo, "100", "OrderStatusChanged", `{"order_id":"100","status":"paid"}`)
	time.Sleep(time.Millisecond)
	second := enqueue(t, repo, "100", "VendorOperationSucceeded", `{"order_id":"100","operation":"deliver"}`)

	publisher := &stubPublisher{}
	n := newTestRelay(repo, publisher).Flush(context.Background())

	require.Equal(t, 2, n)
	require.Equal(t, []string{first.ID, second.ID}, publisher.ids())
	require.Empty(t, repo.AllPending())
}

func TestRelayRetriesThenSucceeds(t *testing.T) {
	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "101", "OrderStatusChanged", `{}`)

	publisher := &stubPublisher{errs: []error{errors.New("broker down"), errors.New("broker down")}}
	newTestRelay(repo, publisher, WithMaxAttempts(3)).Flush(context.Background())

	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.AllPending())
}

func TestRelayDeadLettersAfterAttempts(t *testing.T) {
	repo := memory.NewOutboxRepository()
	msg := enqueue(t, repo, "102", "VendorOperationFailed", `{"order_id":"102"}`)

	publisher := &stubPublisher{fail: errors.New("broker down")}
	dlq := &stubPublisher{}
	relay := newTestRelay(repo, publisher, WithMaxAttempts(2), WithDeadLetter(dlq))
	relay.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	relay.Flush(context.Background())

	require.Equal(t, 2, publisher.calls())
	require.Empty(t, repo.AllPending(), "failed event leaves the pending backlog")
	require.Len(t, dlq.sent, 1)

	var envelope deadLetterEnvelope
	require.NoError(t, json.Unmarshal(dlq.sent[0].Payload, &envelope))
	require.Equal(t, msg.ID, envelope.OutboxID)
	require.Equal(t, "102", envelope.OrderID)
	require.JSONEq(t, `{"order_id":"102"}`, string(envelope.Payload))
	require.Contains(t, envelope.Error, "broker down")
	require.Equal(t, "2026-05-01T10:00:00Z", envelope.FailedAt)
}

func TestRelayKeepsEventOnCancel(t *testing.T) {
	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "103", "OrderStatusChanged", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	publisher := &stubPublisher{fail: errors.New("broker down"), onPublish: cancel}
	newTestRelay(repo, publisher, WithMaxAttempts(5), WithBackoff(time.Second)).Flush(ctx)

	require.Equal(t, 1, publisher.calls())
	require.Len(t, repo.AllPending(), 1)
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	repo := memory.NewOutboxRepository()
	relay := newTestRelay(repo, &stubPublisher{}, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	enqueue(t, repo, "104", "OrderStatusChanged", `{}`)
	require.Eventually(t, func() bool { return len(repo.AllPending()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancel")
	}
}

type stubPublisher struct {
	mu        sync.Mutex
	fail      error
	errs      []error
	sent      []domain.OutboxMessage
	count     int
	onPublish func()
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, event)
	return nil
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *stubPublisher) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sent))
	for _, e := range s.sent {
		ids = append(ids, e.ID)
	}
	return ids
}
