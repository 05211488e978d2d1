// Package httpapi — публичные HTTP-эндпоинты сервиса: платформа, оформление, callback-и провайдера, админка.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/health"
	"github.com/vladislavdragonenkov/sveapay/internal/service/nonce"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

// Reconciler — операции движка согласования, доступные через HTTP.
type Reconciler interface {
	Reconcile(ctx context.Context, intent domain.Intent) (reconcile.Outcome, error)
	HostedCallback(ctx context.Context, p reconcile.HostedPayment) (reconcile.Outcome, error)
	FinishStrongAuth(ctx context.Context, orderID string) (reconcile.Outcome, error)
	RejectStrongAuth(ctx context.Context, orderID string) (reconcile.Outcome, error)
	SyncStatus(ctx context.Context, orderID string, status domain.OrderStatus) (reconcile.Outcome, error)
	CustomerMessage(method domain.PaymentMethod, locale string, err error) string
	Links() reconcile.Links
	Settings() gateway.Settings
}

// Dependencies — зависимости API.
type Dependencies struct {
	Engine Reconciler
	Orders domain.OrderRepository
	Nonces *nonce.Service
	Health *health.Handler
	Logger *log.Entry
	Now    func() time.Time
}

// API обслуживает HTTP-запросы.
type API struct {
	engine Reconciler
	orders domain.OrderRepository
	nonces *nonce.Service
	health *health.Handler
	logger *log.Entry
	now    func() time.Time
}

// New создаёт API.
func New(deps Dependencies) *API {
	a := &API{
		engine: deps.Engine,
		orders: deps.Orders,
		nonces: deps.Nonces,
		health: deps.Health,
		logger: deps.Logger,
		now:    deps.Now,
	}
	if a.logger == nil {
		a.logger = log.WithField("component", "http-api")
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	return a
}

// Routes возвращает обработчик со всеми маршрутами, обёрнутый в трассировку.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	if a.health != nil {
		r.Get("/healthz", a.health.ServeHTTP)
		r.Get("/readyz", a.health.ReadinessHandler)
	}
	r.Get("/livez", health.LivenessHandler)

	r.Route("/platform/orders/{orderID}", func(r chi.Router) {
		r.Put("/", a.putOrder)
		r.Post("/status", a.syncStatus)
	})
	r.Post("/checkout/{orderID}", a.checkout)

	r.Route("/callbacks/{method}", func(r chi.Router) {
		r.Get("/payment", a.paymentCallback)
		r.Post("/payment", a.paymentCallback)
		r.Get("/strong-auth/{result}", a.strongAuthCallback)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/nonces", a.issueNonce)
		r.Post("/orders/{orderID}/{action}", a.adminAction)
	})

	return otelhttp.NewHandler(r, "sveapay-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		a.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
