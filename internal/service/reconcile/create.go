package reconcile

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/service/checkout"
)

const (
	msgPaymentComplete     = "Payment complete"
	msgRedirecting         = "Customer redirected to Svea payment page."
	msgStrongAuthStarted   = "Customer redirected to Svea for identification."
	msgZeroTotalSubscribed = "Subscription order with zero total completed without Svea."
)

// beginAttempt увеличивает и сохраняет счётчик попыток до обращения к провайдеру,
// чтобы каждая попытка уходила с новым номером заказа.
func (s *session) beginAttempt() error {
	err := s.update(func(o *domain.Order) error {
		o.Meta.AttemptCounter++
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"attempt":             s.order.Meta.AttemptCounter,
		"client_order_number": s.order.ClientOrderNumber(),
	}).Debug("payment attempt started")
	return nil
}

// createRequest собирает общую часть запроса на создание заказа.
func (s *session) createRequest() domain.CreateRequest {
	return domain.CreateRequest{
		Currency:          s.order.Currency,
		ClientOrderNumber: s.order.ClientOrderNumber(),
		CustomerReference: checkout.CustomerReference(s.order.Customer),
		Customer:          s.order.Customer,
		Rows:              vendorRows(s.order.Items),
		Language:          s.engine.catalog.Locale(s.settings.Language),
	}
}

func (s *session) sendCreate(ctx context.Context, req domain.CreateRequest) (domain.VendorResponse, error) {
	return s.call(ctx, gateway.CallCreate, false, func(ctx context.Context, target domain.Target) (domain.VendorResponse, error) {
		req.Target = target
		return s.engine.vendor.Create(ctx, req)
	})
}

// createWebService создаёт заказ у провайдера для счёта и рассрочки.
// Со строгой аутентификацией заказ остаётся pending до подтверждения.
func (s *session) createWebService(ctx context.Context, strongAuth bool, fill func(req *domain.CreateRequest)) (Outcome, error) {
	if err := s.beginAttempt(); err != nil {
		return Outcome{}, err
	}

	req := s.createRequest()
	if strongAuth {
		req.ConfirmationURL = s.engine.links.StrongAuth(s.set.Method(), s.order, true)
		req.RejectionURL = s.engine.links.StrongAuth(s.set.Method(), s.order, false)
	}
	if fill != nil {
		fill(&req)
	}

	resp, err := s.sendCreate(ctx, req)
	if err != nil {
		return Outcome{}, s.paymentFailed(err)
	}
	if resp.OrderID == "" {
		return Outcome{}, s.failed(transportError(s.op, s.order.ID, domain.ErrVendorResponseInvalid))
	}

	// Идентификатор провайдера сохраняется раньше любого перехода статуса.
	err = s.commit(func(o *domain.Order) domain.OrderStatus {
		o.Meta.VendorOrderID = resp.OrderID
		o.Meta.StrongAuthPending = strongAuth
		assignRowNumbers(o)
		return ""
	})
	if err != nil {
		return Outcome{}, err
	}
	s.logger.WithField("vendor_order_id", resp.OrderID).Info("vendor order created")

	if strongAuth {
		s.note(msgStrongAuthStarted)
		if s.engine.scheduler != nil {
			s.engine.scheduler.Schedule(s.order.ID)
		}
		return Outcome{
			Message:     msgStrongAuthStarted,
			RedirectURL: resp.RedirectURL,
			Status:      s.order.Status,
			Items:       allItemIDs(s.order),
		}, nil
	}

	if err := s.completePayment(ctx); err != nil {
		return Outcome{}, err
	}
	s.mirrorIdentity()
	s.succeeded(msgPaymentComplete)
	return s.paidOutcome(), nil
}

// createHosted создаёт заказ на hosted-странице (карта, прямой банковский платёж).
// Идентификатор провайдера приходит позже, в callback.
func (s *session) createHosted(ctx context.Context, fill func(req *domain.CreateRequest)) (Outcome, error) {
	if err := s.beginAttempt(); err != nil {
		return Outcome{}, err
	}

	req := s.createRequest()
	req.ReturnURL = s.engine.links.PaymentCallback(s.set.Method(), s.order, false)
	req.CallbackURL = s.engine.links.PaymentCallback(s.set.Method(), s.order, true)
	req.CancelURL = s.engine.links.Checkout()
	if fill != nil {
		fill(&req)
	}

	resp, err := s.sendCreate(ctx, req)
	if err != nil {
		return Outcome{}, s.paymentFailed(err)
	}
	if resp.RedirectURL == "" {
		return Outcome{}, s.failed(transportError(s.op, s.order.ID, domain.ErrVendorResponseInvalid))
	}

	return Outcome{
		Message:     msgRedirecting,
		RedirectURL: resp.RedirectURL,
		Status:      s.order.Status,
	}, nil
}

// completeZeroTotal завершает подписку с нулевой суммой без обращения к провайдеру.
func (s *session) completeZeroTotal(ctx context.Context) (Outcome, error) {
	if err := s.completePayment(ctx); err != nil {
		return Outcome{}, err
	}
	s.mirrorIdentity()
	s.note(msgZeroTotalSubscribed)
	return s.paidOutcome(), nil
}

func (s *session) zeroTotalSubscription() bool {
	return s.order.IsSubscription() && s.order.TotalMinor == 0
}

func (s *session) paidOutcome() Outcome {
	return Outcome{
		Message:     msgPaymentComplete,
		RedirectURL: s.engine.links.OrderReceived(s.order),
		Status:      s.order.Status,
		Items:       allItemIDs(s.order),
	}
}

// mirrorIdentity копирует способ оплаты и идентификационные поля покупателя в подписки заказа.
// Продление берёт идентичность из подписки и обратно её не пишет.
func (s *session) mirrorIdentity() {
	if s.op == domain.OperationRenew {
		return
	}
	s.updateSubscriptions(func(sub *domain.Subscription) {
		sub.PaymentMethod = s.set.Method()
		sub.Identity = s.order.Customer.Identity()
	})
}

func (s *session) updateSubscriptions(mutate func(sub *domain.Subscription)) {
	repo := s.engine.subscriptions
	if repo == nil || !s.order.IsSubscription() {
		return
	}
	for _, id := range s.order.SubscriptionIDs {
		sub, err := repo.Get(id)
		if err != nil {
			s.logger.WithError(err).WithField("subscription_id", id).Warn("load subscription failed")
			continue
		}
		mutate(&sub)
		if err := repo.Save(sub); err != nil {
			s.logger.WithError(err).WithField("subscription_id", id).Warn("save subscription failed")
		}
	}
}
