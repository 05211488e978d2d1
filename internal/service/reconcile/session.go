package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/messages"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
)

// Типы событий outbox.
const (
	EventOrderStatusChanged       = "OrderStatusChanged"
	EventVendorOperationSucceeded = "VendorOperationSucceeded"
	EventVendorOperationFailed    = "VendorOperationFailed"
)

// Типы заметок заказа.
const (
	NoteTypeNote          = "note"
	NoteTypeStatusChanged = "status_changed"
)

// session — состояние одной операции над одним заказом; живёт под блокировкой заказа.
type session struct {
	engine   *Engine
	op       domain.Operation
	order    *domain.Order
	set      OperationSet
	settings gateway.MethodSettings
	logger   *log.Entry
}

func (e *Engine) newSession(op domain.Operation, order *domain.Order, set OperationSet, settings gateway.MethodSettings) *session {
	return &session{
		engine:   e,
		op:       op,
		order:    order,
		set:      set,
		settings: settings,
		logger: e.logger.WithFields(log.Fields{
			"order_id":       order.ID,
			"payment_method": set.Method(),
			"operation":      op,
		}),
	}
}

func (s *session) now() time.Time { return s.engine.now() }

func (s *session) precondition(err error, detail string) *Error {
	return preconditionError(s.op, s.order.ID, err, detail)
}

func (s *session) unsupported() *Error {
	return s.precondition(domain.ErrOperationUnsupported, fmt.Sprintf("%s is not supported by %s", s.op, s.set.Method()))
}

// checkItems проверяет, что все запрошенные позиции принадлежат заказу.
func (s *session) checkItems(ids []string) error {
	for _, id := range ids {
		if _, ok := s.order.Item(id); !ok {
			return s.precondition(domain.ErrLineItemUnknown, "unknown line item "+id)
		}
	}
	return nil
}

// pending возвращает запрошенные (или все) позиции, для которых маркер ещё не выставлен.
func (s *session) pending(ids []string, done func(domain.LineItem) bool) []domain.LineItem {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []domain.LineItem
	for _, item := range s.order.Items {
		if len(ids) > 0 && !wanted[item.ID] {
			continue
		}
		if !done(item) {
			out = append(out, item)
		}
	}
	return out
}

// target собирает адрес вызова провайдера для семейства и страны заказа.
func (s *session) target(admin bool) (domain.Target, error) {
	family := s.set.Family()
	var cfg gateway.Config
	switch family {
	case domain.FamilyCard, domain.FamilyDirectBank:
		cfg = s.settings.MerchantConfig()
	default:
		var err error
		cfg, err = s.settings.CountryConfig(s.order.BillingCountry)
		if err != nil {
			return domain.Target{}, s.precondition(domain.ErrPaymentMethodUnsupported, err.Error())
		}
	}
	target, err := gateway.Target(cfg, family, s.order.BillingCountry, admin)
	if err != nil {
		return domain.Target{}, s.precondition(domain.ErrPaymentMethodUnsupported, err.Error())
	}
	return target, nil
}

// call выполняет вызов провайдера. Сбой транспорта и отказ провайдера возвращаются как *Error.
func (s *session) call(ctx context.Context, name string, admin bool, fn func(context.Context, domain.Target) (domain.VendorResponse, error)) (domain.VendorResponse, error) {
	target, err := s.target(admin)
	if err != nil {
		return domain.VendorResponse{}, err
	}

	start := time.Now()
	resp, err := fn(ctx, target)
	elapsed := time.Since(start)

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultFailed
	case !resp.Accepted:
		result = metrics.ResultRejected
	}
	if m := s.engine.metrics; m != nil {
		m.RecordVendorCall(string(target.Family), name, result, elapsed)
	}

	if err != nil {
		s.logger.WithError(err).WithField("call", name).Warn("vendor call failed")
		return domain.VendorResponse{}, transportError(s.op, s.order.ID, err)
	}
	if !resp.Accepted {
		s.logger.WithFields(log.Fields{
			"call":        name,
			"result_code": resp.ResultCode,
		}).Info("vendor rejected request")
		return resp, rejectedError(s.op, s.order.ID, resp)
	}
	return resp, nil
}

// update применяет mutate к копии заказа и сохраняет её. При конфликте версий заказ
// перечитывается и mutate применяется ещё раз.
func (s *session) update(mutate func(o *domain.Order) error) error {
	const maxAttempts = 2

	for attempt := 1; ; attempt++ {
		next := s.order.Clone()
		if err := mutate(&next); err != nil {
			return err
		}
		next.UpdatedAt = s.now()

		err := s.engine.orders.Save(next)
		if err == nil {
			next.Version++
			*s.order = next
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt >= maxAttempts {
			s.logger.WithError(err).WithField("attempt", attempt).Error("failed to persist order")
			return fmt.Errorf("persist order %s: %w", s.order.ID, err)
		}

		s.logger.WithFields(log.Fields{
			"attempt": attempt,
			"version": s.order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := s.engine.orders.Get(s.order.ID)
		if loadErr != nil {
			s.logger.WithError(loadErr).Error("failed to reload order after conflict")
			return fmt.Errorf("reload order %s: %w", s.order.ID, loadErr)
		}
		*s.order = fresh
	}
}

// commit сохраняет изменения mutate и переводит заказ в возвращённый статус ("": без перехода).
// Недопустимый переход не сохраняется, остальные изменения сохраняются.
func (s *session) commit(mutate func(o *domain.Order) domain.OrderStatus) error {
	var previous domain.OrderStatus
	var changed bool

	err := s.update(func(o *domain.Order) error {
		changed = false
		previous = o.Status

		next := mutate(o)
		if next == "" {
			return nil
		}
		ok, err := o.Transition(next, s.now())
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"status": o.Status,
				"target": next,
			}).Warn("status transition skipped")
			return nil
		}
		changed = ok
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.statusChanged(previous)
	}
	return nil
}

// setStatus — commit без изменения полей.
func (s *session) setStatus(next domain.OrderStatus) error {
	return s.commit(func(*domain.Order) domain.OrderStatus { return next })
}

// markDelivered выставляет маркеры доставки; уже выставленные не трогает.
func markDelivered(o *domain.Order, ids []string, invoiceID string, at time.Time) int {
	n := 0
	for _, id := range ids {
		item, ok := o.Item(id)
		if !ok || item.Delivered() {
			continue
		}
		ts := at
		item.DeliveredAt = &ts
		if invoiceID != "" {
			item.VendorInvoiceID = invoiceID
		}
		n++
	}
	return n
}

// markCredited выставляет маркеры возврата; уже выставленные не трогает.
func markCredited(o *domain.Order, ids []string, at time.Time) int {
	n := 0
	for _, id := range ids {
		item, ok := o.Item(id)
		if !ok || item.Credited() {
			continue
		}
		ts := at
		item.CreditedAt = &ts
		n++
	}
	return n
}

func itemIDs(items []domain.LineItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func allItemIDs(o *domain.Order) []string {
	return itemIDs(o.Items)
}

func (s *session) recordMarkers(marker string, n int) {
	if m := s.engine.metrics; m != nil {
		m.RecordMarkers(marker, n)
	}
}

// clearCart очищает корзину после того, как оплата сохранена.
func (s *session) clearCart(ctx context.Context) {
	if s.engine.cart == nil {
		return
	}
	if err := s.engine.cart.Clear(ctx, s.order.ID); err != nil {
		s.logger.WithError(err).Warn("cart clear failed")
	}
}

// completePayment переводит заказ в paid и очищает корзину. vendor_order_id уже сохранён.
func (s *session) completePayment(ctx context.Context) error {
	if err := s.setStatus(domain.OrderStatusPaid); err != nil {
		return err
	}
	s.clearCart(ctx)
	s.logger.WithField("vendor_order_id", s.order.Meta.VendorOrderID).Info("payment complete")
	return nil
}

func (s *session) note(message string) {
	s.appendNote(NoteTypeNote, message)
}

func (s *session) appendNote(noteType, message string) {
	timeline := s.engine.timeline
	if timeline == nil || message == "" {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  s.order.ID,
		Type:     noteType,
		Message:  message,
		Occurred: s.now(),
	}
	if err := timeline.Append(event); err != nil {
		s.logger.WithError(err).Warn("append order note failed")
		return
	}
	if m := s.engine.metrics; m != nil {
		m.RecordTimelineEvent()
	}
}

func (s *session) statusChanged(previous domain.OrderStatus) {
	s.appendNote(NoteTypeStatusChanged, fmt.Sprintf("Order status changed from %s to %s.", previous, s.order.Status))
	s.emit(EventOrderStatusChanged, map[string]any{
		"status":          s.order.Status,
		"previous_status": previous,
		"updated_at":      s.order.UpdatedAt.Format(time.RFC3339Nano),
	})
}

// succeeded записывает заметку и событие об успешной операции у провайдера.
func (s *session) succeeded(message string) {
	s.note(message)
	s.emit(EventVendorOperationSucceeded, map[string]any{
		"operation":       s.op,
		"payment_method":  s.set.Method(),
		"vendor_order_id": s.order.Meta.VendorOrderID,
		"message":         message,
	})
}

// failed публикует событие о неуспешной операции и возвращает err без изменений.
func (s *session) failed(err error) error {
	payload := map[string]any{
		"operation":      s.op,
		"payment_method": s.set.Method(),
		"error":          err.Error(),
	}
	if rerr, ok := AsError(err); ok {
		payload["kind"] = rerr.Kind.String()
		payload["result_code"] = rerr.ResultCode
		payload["message"] = rerr.OperatorMessage()
		if rerr.Group > 0 {
			payload["group"] = rerr.Group
		}
	}
	s.emit(EventVendorOperationFailed, payload)
	return err
}

func (s *session) emit(eventType string, payload map[string]any) {
	outbox := s.engine.outbox
	if outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = s.order.ID
	payload["ts"] = s.now().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   s.order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("enqueue event failed")
		return
	}
	if m := s.engine.metrics; m != nil {
		m.RecordOutboxEvent()
	}
}

// customerError — сообщение покупателю для отказа или сбоя при оплате.
func (s *session) customerError(err error) string {
	return customerMessage(s.engine.catalog, s.settings.Language, err)
}

func customerMessage(catalog *messages.Catalog, locale string, err error) string {
	rerr, ok := AsError(err)
	switch {
	case ok && rerr.Kind == KindTransport:
		return catalog.Transport(locale)
	case ok && rerr.Kind == KindVendorRejected && rerr.ResultCode != 0:
		return catalog.ForCode(locale, rerr.ResultCode)
	default:
		return catalog.Unknown(locale)
	}
}

// paymentFailed фиксирует неуспешную попытку оплаты: статус не меняется.
func (s *session) paymentFailed(err error) error {
	if !IsKind(err, KindPrecondition) {
		s.note(fmt.Sprintf("Customer received error: %s", s.customerError(err)))
	}
	return s.failed(err)
}
