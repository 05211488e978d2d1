package reconcile

import "github.com/vladislavdragonenkov/sveapay/internal/domain"

// Outcome — успешный результат операции согласования.
type Outcome struct {
	// NoOp — ничего не отправлялось провайдеру и ничего не менялось.
	NoOp bool
	// Message — человекочитаемый итог (заметка заказа, уведомление в админке).
	Message string
	// RedirectURL — куда отправить покупателя (страница оплаты, идентификация, подтверждение).
	RedirectURL string
	Status      domain.OrderStatus
	// Items — позиции, затронутые операцией.
	Items []string
}

func noop(message string, status domain.OrderStatus) Outcome {
	return Outcome{NoOp: true, Message: message, Status: status}
}
