package domain

// PaymentMethod — идентификатор способа оплаты, сохранённый в заказе.
type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "sveawebpay_card"
	PaymentMethodInvoice    PaymentMethod = "sveawebpay_invoice"
	PaymentMethodPartPay    PaymentMethod = "sveawebpay_part_pay"
	PaymentMethodDirectBank PaymentMethod = "sveawebpay_direct_bank"
)

// Operation — операция согласования заказа с провайдером.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationDeliver Operation = "deliver"
	OperationCredit  Operation = "credit"
	OperationCancel  Operation = "cancel"
	// OperationRefundAmount — возврат произвольной суммы без привязки к позициям.
	OperationRefundAmount Operation = "refund_amount"
	// OperationRenew — рекуррентное списание по подписке.
	OperationRenew Operation = "renew"
)

// Intent — запрос на одну операцию согласования. Не сохраняется.
type Intent struct {
	Operation Operation
	OrderID   string
	// LineItemIDs — необязательное подмножество позиций для Deliver/Credit.
	LineItemIDs []string
	// PaymentMethod переопределяет способ оплаты заказа, если задан.
	PaymentMethod PaymentMethod
	// AmountMinor — сумма для RefundAmount/Renew.
	AmountMinor int64
	Reason      string
	// SubscriptionID — подписка, по которой выполняется Renew.
	SubscriptionID string
}
