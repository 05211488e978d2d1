package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
	"github.com/vladislavdragonenkov/sveapay/internal/storage/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingCart struct {
	mu      sync.Mutex
	cleared []string
	err     error
}

func (c *recordingCart) Clear(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, orderID)
	return c.err
}

func (c *recordingCart) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cleared)
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
}

func (s *recordingScheduler) Schedule(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, orderID)
}

type harness struct {
	engine    *Engine
	vendor    *gateway.MockClient
	orders    domain.OrderRepository
	subs      domain.SubscriptionRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	cart      *recordingCart
	scheduler *recordingScheduler
	registry  *prometheus.Registry
}

func testSettings() gateway.Settings {
	country := gateway.CountrySettings{Username: "sverigetest", Password: "sverigetest", ClientNumber: "79021", Testmode: true}
	countries := map[string]gateway.CountrySettings{"SE": country, "NO": country, "DE": country}
	return gateway.Settings{Methods: map[domain.PaymentMethod]gateway.MethodSettings{
		domain.PaymentMethodInvoice:    {Enabled: true, Testmode: true, Language: "en", Countries: countries},
		domain.PaymentMethodPartPay:    {Enabled: true, Testmode: true, Language: "en", Countries: countries},
		domain.PaymentMethodCard:       {Enabled: true, Testmode: true, Language: "en", MerchantID: "1130", SecretWord: "secret"},
		domain.PaymentMethodDirectBank: {Enabled: true, Testmode: true, Language: "en", MerchantID: "1130", SecretWord: "secret"},
	}}
}

func newHarness(t *testing.T, configure ...func(*gateway.Settings)) *harness {
	t.Helper()

	settings := testSettings()
	for _, fn := range configure {
		fn(&settings)
	}

	h := &harness{
		vendor:    gateway.NewMockClient(),
		orders:    memory.NewOrderRepository(),
		subs:      memory.NewSubscriptionRepository(),
		timeline:  memory.NewTimelineRepository(),
		outbox:    memory.NewOutboxRepository(),
		cart:      &recordingCart{},
		scheduler: &recordingScheduler{},
		registry:  prometheus.NewRegistry(),
	}
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	h.engine = NewEngine(Dependencies{
		Orders:        h.orders,
		Subscriptions: h.subs,
		Timeline:      h.timeline,
		Outbox:        h.outbox,
		Cart:          h.cart,
		Vendor:        h.vendor,
		Settings:      settings,
		Links:         NewLinks("https://shop.example"),
		Metrics:       metrics.NewReconcileMetricsWithRegisterer(h.registry),
		Logger:        logger.WithField("test", t.Name()),
		Now:           func() time.Time { return testNow },
	})
	h.engine.SetScheduler(h.scheduler)
	return h
}

func withStrongAuth(method domain.PaymentMethod) func(*gateway.Settings) {
	return func(s *gateway.Settings) {
		m := s.Methods[method]
		m.StrongAuthSE = true
		s.Methods[method] = m
	}
}

func newOrder(id string, method domain.PaymentMethod, items ...domain.LineItem) domain.Order {
	if len(items) == 0 {
		items = []domain.LineItem{
			{ID: "A", Type: domain.LineItemProduct, Name: "Alpha", ArticleNumber: "SKU-A", Quantity: 1, UnitPriceExVatMinor: 10000, VatPercent: 25},
			{ID: "B", Type: domain.LineItemProduct, Name: "Beta", ArticleNumber: "SKU-B", Quantity: 2, UnitPriceExVatMinor: 5000, VatPercent: 25},
		}
	}
	var total, tax int64
	for _, item := range items {
		total += item.TotalIncVatMinor()
		tax += item.TotalIncVatMinor() - item.TotalExVatMinor()
	}
	return domain.Order{
		ID:             id,
		Number:         id,
		Key:            "wc_order_" + id,
		Status:         domain.OrderStatusPending,
		PaymentMethod:  method,
		BillingCountry: "SE",
		Currency:       "SEK",
		TotalMinor:     total,
		TaxMinor:       tax,
		Customer: domain.Customer{
			Type:       domain.CustomerIndividual,
			FirstName:  "Tess",
			LastName:   "Persson",
			Email:      "tess@example.com",
			NationalID: "194605092222",
			Country:    "SE",
		},
		Items:     items,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func (h *harness) seed(t *testing.T, order domain.Order) {
	t.Helper()
	if err := h.orders.Create(order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func (h *harness) order(t *testing.T, id string) domain.Order {
	t.Helper()
	order, err := h.orders.Get(id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return order
}

func (h *harness) notes(t *testing.T, id string) []string {
	t.Helper()
	events, err := h.timeline.List(id)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Message)
	}
	return out
}

func (h *harness) events(t *testing.T, eventType string) []domain.OutboxMessage {
	t.Helper()
	pending, err := h.outbox.PullPending(1000)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}
	var out []domain.OutboxMessage
	for _, msg := range pending {
		if msg.EventType == eventType {
			out = append(out, msg)
		}
	}
	return out
}

func (h *harness) reconcile(t *testing.T, op domain.Operation, orderID string, items ...string) (Outcome, error) {
	t.Helper()
	return h.engine.Reconcile(context.Background(), domain.Intent{Operation: op, OrderID: orderID, LineItemIDs: items})
}

// delivered помечает позиции доставленными в заданные счета.
func delivered(order domain.Order, invoices map[string]string) domain.Order {
	at := testNow.Add(-time.Hour)
	for i := range order.Items {
		order.Items[i].VendorRowNumber = i + 1
		if inv, ok := invoices[order.Items[i].ID]; ok {
			ts := at
			order.Items[i].DeliveredAt = &ts
			order.Items[i].VendorInvoiceID = inv
		}
	}
	return order
}
