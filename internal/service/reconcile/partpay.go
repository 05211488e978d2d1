package reconcile

import (
	"context"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
)

type partPayOperations struct {
	unsupported
	capabilities
}

// NewPartPayOperations — операции оплаты в рассрочку (план платежей).
func NewPartPayOperations() OperationSet {
	return partPayOperations{capabilities: capabilities{
		domain.OperationCreate:  true,
		domain.OperationDeliver: true,
		domain.OperationCancel:  true,
	}}
}

func (partPayOperations) Method() domain.PaymentMethod { return domain.PaymentMethodPartPay }
func (partPayOperations) Family() domain.OrderFamily   { return domain.FamilyPaymentPlan }

func (partPayOperations) create(ctx context.Context, s *session) (Outcome, error) {
	campaign := s.order.Meta.PaymentPlanCampaign
	if campaign == "" {
		return Outcome{}, s.precondition(domain.ErrCampaignRequired, "")
	}
	return s.createWebService(ctx, s.settings.UsesStrongAuth(s.order.BillingCountry), func(req *domain.CreateRequest) {
		req.CampaignCode = campaign
	})
}

// deliver — план платежей доставляется только целиком.
func (partPayOperations) deliver(ctx context.Context, s *session, _ []string) (Outcome, error) {
	return s.deliverAll(ctx, gateway.DefaultDistributionType)
}

func (partPayOperations) cancel(ctx context.Context, s *session) (Outcome, error) {
	return s.cancelVendorOrder(ctx)
}
