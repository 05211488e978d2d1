// Package reconcile согласует состояние заказа магазина с заказом у провайдера Svea WebPay.
package reconcile

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/messages"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
)

const (
	msgNoOperations     = "no operations available"
	msgAlreadyDelivered = "already delivered"
	msgAlreadyCredited  = "already credited"
	msgAlreadyPaid      = "already paid"
)

// Scheduler ставит отложенную проверку строгой аутентификации.
type Scheduler interface {
	Schedule(orderID string)
}

// Dependencies — зависимости движка согласования.
type Dependencies struct {
	Orders        domain.OrderRepository
	Subscriptions domain.SubscriptionRepository
	Timeline      domain.TimelineRepository
	Outbox        domain.OutboxRepository
	Cart          domain.CartService
	Vendor        domain.VendorClient
	Settings      gateway.Settings
	Router        *Router
	Links         Links
	Catalog       *messages.Catalog
	Metrics       *metrics.ReconcileMetrics
	Logger        *log.Entry
	Now           func() time.Time
}

// Engine выполняет Intent против провайдера и применяет идемпотентные локальные изменения.
type Engine struct {
	orders        domain.OrderRepository
	subscriptions domain.SubscriptionRepository
	timeline      domain.TimelineRepository
	outbox        domain.OutboxRepository
	cart          domain.CartService
	vendor        domain.VendorClient
	settings      gateway.Settings
	router        *Router
	links         Links
	catalog       *messages.Catalog
	metrics       *metrics.ReconcileMetrics
	scheduler     Scheduler
	locks         *KeyedMutex
	tracer        trace.Tracer
	logger        *log.Entry
	now           func() time.Time
}

// NewEngine создаёт движок согласования.
func NewEngine(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	router := deps.Router
	if router == nil {
		router = DefaultRouter()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = messages.NewCatalog("en")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		orders:        deps.Orders,
		subscriptions: deps.Subscriptions,
		timeline:      deps.Timeline,
		outbox:        deps.Outbox,
		cart:          deps.Cart,
		vendor:        deps.Vendor,
		settings:      deps.Settings,
		router:        router,
		links:         deps.Links,
		catalog:       catalog,
		metrics:       deps.Metrics,
		locks:         NewKeyedMutex(),
		tracer:        otel.Tracer("github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"),
		logger:        logger,
		now:           now,
	}
}

// SetScheduler подключает отложенную проверку строгой аутентификации.
// Вызывается до начала обработки запросов.
func (e *Engine) SetScheduler(s Scheduler) {
	e.scheduler = s
}

// Links возвращает построитель публичных адресов.
func (e *Engine) Links() Links {
	return e.links
}

// Catalog возвращает каталог сообщений для покупателя.
func (e *Engine) Catalog() *messages.Catalog {
	return e.catalog
}

// Settings возвращает настройки способов оплаты.
func (e *Engine) Settings() gateway.Settings {
	return e.settings
}

// CustomerMessage переводит ошибку согласования в текст для покупателя.
// Пустой locale: язык из настроек способа оплаты.
func (e *Engine) CustomerMessage(method domain.PaymentMethod, locale string, err error) string {
	if locale == "" {
		if settings, ok := e.settings.Method(method); ok {
			locale = settings.Language
		}
	}
	return customerMessage(e.catalog, locale, err)
}

// Router возвращает маршрутизатор способов оплаты.
func (e *Engine) Router() *Router {
	return e.router
}

// Reconcile выполняет одну операцию согласования под блокировкой заказа.
func (e *Engine) Reconcile(ctx context.Context, intent domain.Intent) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile."+string(intent.Operation), trace.WithAttributes(
		attribute.String("order.id", intent.OrderID),
		attribute.String("reconcile.operation", string(intent.Operation)),
	))
	defer span.End()

	unlock := e.locks.Lock(intent.OrderID)
	defer unlock()

	method := intent.PaymentMethod
	out, err := e.reconcileLocked(ctx, intent, &method)

	e.record(string(method), string(intent.Operation), out, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Bool("reconcile.noop", out.NoOp))
	}
	return out, err
}

func (e *Engine) reconcileLocked(ctx context.Context, intent domain.Intent, method *domain.PaymentMethod) (Outcome, error) {
	s, out, err := e.open(intent.Operation, intent.OrderID, intent.PaymentMethod)
	if s == nil {
		return out, err
	}
	*method = s.set.Method()

	if !s.set.Supports(intent.Operation) {
		return Outcome{}, s.unsupported()
	}
	if err := s.checkItems(intent.LineItemIDs); err != nil {
		return Outcome{}, err
	}

	switch intent.Operation {
	case domain.OperationCreate, domain.OperationRenew:
		if s.order.HasVendorOrder() {
			return Outcome{}, s.precondition(domain.ErrVendorOrderExists, "")
		}
	default:
		if !s.order.HasVendorOrder() {
			return Outcome{}, s.precondition(domain.ErrVendorOrderMissing, "")
		}
	}

	switch intent.Operation {
	case domain.OperationCreate:
		return s.set.create(ctx, s)
	case domain.OperationDeliver:
		if pending := s.pending(intent.LineItemIDs, domain.LineItem.Delivered); len(pending) == 0 {
			return noop(msgAlreadyDelivered, s.order.Status), nil
		}
		return s.set.deliver(ctx, s, intent.LineItemIDs)
	case domain.OperationCredit:
		if pending := s.pending(intent.LineItemIDs, domain.LineItem.Credited); len(pending) == 0 {
			return noop(msgAlreadyCredited, s.order.Status), nil
		}
		return s.set.credit(ctx, s, intent.LineItemIDs)
	case domain.OperationCancel:
		return s.set.cancel(ctx, s)
	case domain.OperationRefundAmount:
		if intent.AmountMinor <= 0 || intent.AmountMinor > s.order.TotalMinor {
			return Outcome{}, s.precondition(domain.ErrAmountInvalid, "")
		}
		return s.set.refundAmount(ctx, s, intent.AmountMinor, intent.Reason)
	case domain.OperationRenew:
		sub, err := e.renewalSubscription(s, intent.SubscriptionID)
		if err != nil {
			return Outcome{}, err
		}
		amount := intent.AmountMinor
		if amount <= 0 {
			amount = s.order.TotalMinor
		}
		return s.set.renew(ctx, s, sub, amount)
	default:
		return Outcome{}, s.unsupported()
	}
}

// open загружает заказ и настройки способа оплаты. Если session == nil, результат уже готов.
func (e *Engine) open(op domain.Operation, orderID string, override domain.PaymentMethod) (*session, Outcome, error) {
	order, err := e.orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, Outcome{}, preconditionError(op, orderID, err, "")
		}
		return nil, Outcome{}, err
	}

	method := order.PaymentMethod
	if override != "" {
		method = override
	}
	set, ok := e.router.Resolve(string(method))
	if !ok {
		e.logger.WithFields(log.Fields{
			"order_id":       orderID,
			"payment_method": method,
			"operation":      op,
		}).Debug("no operation set for payment method")
		return nil, noop(msgNoOperations, order.Status), nil
	}

	settings, ok := e.settings.Method(set.Method())
	if !ok {
		return nil, Outcome{}, preconditionError(op, orderID, domain.ErrPaymentMethodUnsupported, "payment method "+string(set.Method())+" is not enabled")
	}

	return e.newSession(op, &order, set, settings), Outcome{}, nil
}

func (e *Engine) renewalSubscription(s *session, subscriptionID string) (domain.Subscription, error) {
	if subscriptionID == "" && len(s.order.SubscriptionIDs) > 0 {
		subscriptionID = s.order.SubscriptionIDs[0]
	}
	if subscriptionID == "" || e.subscriptions == nil {
		return domain.Subscription{}, s.precondition(domain.ErrSubscriptionNotFound, "")
	}
	sub, err := e.subscriptions.Get(subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return domain.Subscription{}, s.precondition(err, "")
		}
		return domain.Subscription{}, err
	}
	return sub, nil
}

func (e *Engine) record(method, operation string, out Outcome, err error) {
	if e.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	switch {
	case err != nil && IsKind(err, KindVendorRejected):
		result = metrics.ResultRejected
	case err != nil:
		result = metrics.ResultFailed
	case out.NoOp:
		result = metrics.ResultNoOp
	}
	if method == "" {
		method = "unknown"
	}
	e.metrics.RecordOperation(method, operation, result)
}
