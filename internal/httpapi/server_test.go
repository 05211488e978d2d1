package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/health"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
	"github.com/vladislavdragonenkov/sveapay/internal/service/cart"
	"github.com/vladislavdragonenkov/sveapay/internal/service/nonce"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
	"github.com/vladislavdragonenkov/sveapay/internal/storage/memory"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testServer struct {
	server *httptest.Server
	client *http.Client
	vendor *gateway.MockClient
	orders domain.OrderRepository
	outbox domain.OutboxRepository
}

func testSettings() gateway.Settings {
	country := gateway.CountrySettings{Username: "sverigetest", Password: "sverigetest", ClientNumber: "79021", Testmode: true}
	countries := map[string]gateway.CountrySettings{"SE": country, "NO": country}
	return gateway.Settings{Methods: map[domain.PaymentMethod]gateway.MethodSettings{
		domain.PaymentMethodInvoice:    {Enabled: true, Testmode: true, Language: "en", Countries: countries},
		domain.PaymentMethodPartPay:    {Enabled: true, Testmode: true, Language: "en", Countries: countries},
		domain.PaymentMethodCard:       {Enabled: true, Testmode: true, Language: "en", MerchantID: "1130", SecretWord: "secret"},
		domain.PaymentMethodDirectBank: {Enabled: true, Testmode: true, Language: "en", MerchantID: "1130", SecretWord: "secret"},
	}}
}

func newTestServer(t *testing.T, configure ...func(*gateway.Settings)) *testServer {
	t.Helper()

	settings := testSettings()
	for _, fn := range configure {
		fn(&settings)
	}

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("test", t.Name())

	ts := &testServer{
		vendor: gateway.NewMockClient(),
		orders: memory.NewOrderRepository(),
		outbox: memory.NewOutboxRepository(),
	}
	engine := reconcile.NewEngine(reconcile.Dependencies{
		Orders:        ts.orders,
		Subscriptions: memory.NewSubscriptionRepository(),
		Timeline:      memory.NewTimelineRepository(),
		Outbox:        ts.outbox,
		Cart:          cart.NewOutboxCart(ts.outbox),
		Vendor:        ts.vendor,
		Settings:      settings,
		Links:         reconcile.NewLinks("https://shop.example"),
		Metrics:       metrics.NewReconcileMetricsWithRegisterer(prometheus.NewRegistry()),
		Logger:        entry,
		Now:           func() time.Time { return testNow },
	})

	api := New(Dependencies{
		Engine: engine,
		Orders: ts.orders,
		Nonces: nonce.NewService(memory.NewNonceRepository(), nonce.DefaultTTL, entry),
		Health: health.NewHandler("test"),
		Logger: entry,
		Now:    func() time.Time { return testNow },
	})

	ts.server = httptest.NewServer(api.Routes())
	t.Cleanup(ts.server.Close)
	ts.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) json(t *testing.T, method, path string, v any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return ts.do(t, method, path, bytes.NewReader(payload), "application/json")
}

func (ts *testServer) form(t *testing.T, path string, values url.Values) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (ts *testServer) seed(t *testing.T, order domain.Order) {
	t.Helper()
	require.NoError(t, ts.orders.Create(order))
}

func (ts *testServer) order(t *testing.T, id string) domain.Order {
	t.Helper()
	order, err := ts.orders.Get(id)
	require.NoError(t, err)
	return order
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func testOrder(id string, method domain.PaymentMethod) domain.Order {
	items := []domain.LineItem{
		{ID: "A", Type: domain.LineItemProduct, Name: "Alpha", ArticleNumber: "SKU-A", Quantity: 1, UnitPriceExVatMinor: 10000, VatPercent: 25},
		{ID: "B", Type: domain.LineItemProduct, Name: "Beta", ArticleNumber: "SKU-B", Quantity: 2, UnitPriceExVatMinor: 5000, VatPercent: 25},
	}
	return domain.Order{
		ID:             id,
		Number:         id,
		Key:            "wc_order_" + id,
		Status:         domain.OrderStatusPending,
		PaymentMethod:  method,
		BillingCountry: "SE",
		Currency:       "SEK",
		TotalMinor:     25000,
		TaxMinor:       5000,
		Customer: domain.Customer{
			Type:      domain.CustomerIndividual,
			FirstName: "Tess",
			LastName:  "Persson",
			Email:     "tess@example.com",
			Country:   "SE",
		},
		Items:     items,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func TestProbes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/livez", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[health.Response](t, resp)
	require.Equal(t, health.StatusHealthy, body.Status)
	require.Equal(t, "test", body.Version)

	resp = ts.do(t, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"1", "2", "3"}, splitList(" 1, 2,,3 "))
	require.Nil(t, splitList(""))
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		require.True(t, truthy(v), v)
	}
	for _, v := range []string{"", "0", "no", "false"} {
		require.False(t, truthy(v), v)
	}
}
