package reconcile

import (
	"context"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// OperationSet — набор операций одного способа оплаты.
// Реализации ограничены этим пакетом: см. NewCardOperations и соседние конструкторы.
type OperationSet interface {
	Method() domain.PaymentMethod
	Family() domain.OrderFamily
	Supports(op domain.Operation) bool

	create(ctx context.Context, s *session) (Outcome, error)
	deliver(ctx context.Context, s *session, itemIDs []string) (Outcome, error)
	credit(ctx context.Context, s *session, itemIDs []string) (Outcome, error)
	cancel(ctx context.Context, s *session) (Outcome, error)
	refundAmount(ctx context.Context, s *session, amountMinor int64, reason string) (Outcome, error)
	renew(ctx context.Context, s *session, sub domain.Subscription, amountMinor int64) (Outcome, error)
}

// Router выбирает набор операций по идентификатору способа оплаты.
type Router struct {
	sets map[domain.PaymentMethod]OperationSet
}

// NewRouter создаёт маршрутизатор из наборов операций. Более поздний набор заменяет более ранний.
func NewRouter(sets ...OperationSet) *Router {
	r := &Router{sets: make(map[domain.PaymentMethod]OperationSet, len(sets))}
	for _, set := range sets {
		if set != nil {
			r.sets[set.Method()] = set
		}
	}
	return r
}

// DefaultRouter — маршрутизатор со всеми четырьмя способами оплаты.
func DefaultRouter() *Router {
	return NewRouter(
		NewCardOperations(),
		NewInvoiceOperations(),
		NewPartPayOperations(),
		NewDirectBankOperations(),
	)
}

// Resolve возвращает набор операций; неизвестный способ: (nil, false).
func (r *Router) Resolve(methodID string) (OperationSet, bool) {
	set, ok := r.sets[domain.PaymentMethod(methodID)]
	return set, ok
}

type capabilities map[domain.Operation]bool

func (c capabilities) Supports(op domain.Operation) bool { return c[op] }

// unsupported — операции по умолчанию для возможностей, которых у способа оплаты нет.
type unsupported struct{}

func (unsupported) create(_ context.Context, s *session) (Outcome, error) {
	return Outcome{}, s.unsupported()
}

func (unsupported) deliver(_ context.Context, s *session, _ []string) (Outcome, error) {
	return Outcome{}, s.unsupported()
}

func (unsupported) credit(_ context.Context, s *session, _ []string) (Outcome, error) {
	return Outcome{}, s.unsupported()
}

func (unsupported) cancel(_ context.Context, s *session) (Outcome, error) {
	return Outcome{}, s.unsupported()
}

func (unsupported) refundAmount(_ context.Context, s *session, _ int64, _ string) (Outcome, error) {
	return Outcome{}, s.unsupported()
}

func (unsupported) renew(_ context.Context, s *session, _ domain.Subscription, _ int64) (Outcome, error) {
	return Outcome{}, s.unsupported()
}
