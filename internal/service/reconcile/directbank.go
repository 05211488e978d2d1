package reconcile

import (
	"context"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

type directBankOperations struct {
	unsupported
	capabilities
}

// NewDirectBankOperations — операции прямого банковского платежа.
func NewDirectBankOperations() OperationSet {
	return directBankOperations{capabilities: capabilities{
		domain.OperationCreate:       true,
		domain.OperationCredit:       true,
		domain.OperationRefundAmount: true,
	}}
}

func (directBankOperations) Method() domain.PaymentMethod { return domain.PaymentMethodDirectBank }
func (directBankOperations) Family() domain.OrderFamily   { return domain.FamilyDirectBank }

func (directBankOperations) create(ctx context.Context, s *session) (Outcome, error) {
	bank := s.order.Meta.BankMethod
	if bank == "" {
		return Outcome{}, s.precondition(domain.ErrBankMethodRequired, "")
	}
	return s.createHosted(ctx, func(req *domain.CreateRequest) {
		req.BankMethod = bank
	})
}

func (directBankOperations) credit(ctx context.Context, s *session, _ []string) (Outcome, error) {
	return s.creditWholeOrder(ctx)
}

func (directBankOperations) refundAmount(ctx context.Context, s *session, amountMinor int64, reason string) (Outcome, error) {
	return s.refundRows(ctx, "", amountMinor, reason)
}
