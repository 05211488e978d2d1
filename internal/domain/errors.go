package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствующей страны плательщика.
	ErrCountryRequired = errors.New("billing country is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one line item")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("line item quantity must be greater than zero")
	// Ошибка дублирующегося идентификатора позиции.
	ErrItemDuplicate = errors.New("line item id must be unique within the order")
	// Ошибка неизвестного типа позиции.
	ErrItemTypeInvalid = errors.New("line item type is invalid")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("order total must be non-negative")
	// Ошибка неизвестного статуса.
	ErrStatusInvalid = errors.New("order status is invalid")
	// ErrStatusTransition возвращается при попытке перевести статус назад.
	ErrStatusTransition = errors.New("order status transition is not allowed")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderAlreadyExists возвращается при повторном создании заказа.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderLocked запрещает менять состав заказа, у которого уже есть заказ у провайдера.
	ErrOrderLocked = errors.New("order structure is locked by vendor order")
	// ErrSubscriptionNotFound возвращается, если подписка не найдена.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrVendorOrderMissing: у заказа нет vendor_order_id, операции у провайдера невозможны.
	ErrVendorOrderMissing = errors.New("order has no vendor order id")
	// ErrVendorOrderExists: повторный Create для заказа с vendor_order_id.
	ErrVendorOrderExists = errors.New("order already has a vendor order id")
	// ErrNotYetDelivered: у позиции нет счёта, сначала нужна доставка.
	ErrNotYetDelivered = errors.New("an invoice could not be found, deliver the order first")
	// ErrOperationUnsupported: способ оплаты не поддерживает операцию.
	ErrOperationUnsupported = errors.New("operation is not supported by the payment method")
	// ErrPaymentMethodUnsupported: неизвестный способ оплаты.
	ErrPaymentMethodUnsupported = errors.New("payment method is not supported")
	// ErrLineItemUnknown: в запросе указан идентификатор позиции, которого нет в заказе.
	ErrLineItemUnknown = errors.New("line item does not belong to the order")
	// ErrSubscriptionMissing: для рекуррентного списания нет идентификатора подписки провайдера.
	ErrSubscriptionMissing = errors.New("subscription has no vendor subscription id")
	// ErrAmountInvalid: сумма частичного возврата вне допустимого диапазона.
	ErrAmountInvalid = errors.New("refund amount is invalid")
	// ErrOrderKeyInvalid: ключ заказа из callback не совпал.
	ErrOrderKeyInvalid = errors.New("order key is not valid for order")
	// ErrCampaignRequired: для рассрочки не выбран план (кампания).
	ErrCampaignRequired = errors.New("payment plan campaign is required")
	// ErrBankMethodRequired: для прямого банковского платежа не выбран банк.
	ErrBankMethodRequired = errors.New("bank method is required")
	// ErrNothingToDeliver: ни одна из выбранных позиций не найдена среди строк провайдера.
	ErrNothingToDeliver = errors.New("there are no order rows to deliver")

	// ErrVendorUnavailable — circuit breaker открыт, запросы к провайдеру временно не отправляются.
	ErrVendorUnavailable = errors.New("vendor gateway is unavailable")
	// ErrVendorResponseInvalid — ответ провайдера не прошёл проверку схемы.
	ErrVendorResponseInvalid = errors.New("vendor response is malformed")

	// ErrNonceRequired — пустой токен.
	ErrNonceRequired = errors.New("nonce is required")
	// ErrNonceInvalid — токен не найден, истёк, уже использован или выдан для другого действия.
	ErrNonceInvalid = errors.New("nonce is invalid")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsPrecondition сообщает, что ошибка решается локально и до обращения к провайдеру.
func IsPrecondition(err error) bool {
	switch {
	case errors.Is(err, ErrVendorOrderMissing),
		errors.Is(err, ErrVendorOrderExists),
		errors.Is(err, ErrNotYetDelivered),
		errors.Is(err, ErrOperationUnsupported),
		errors.Is(err, ErrPaymentMethodUnsupported),
		errors.Is(err, ErrLineItemUnknown),
		errors.Is(err, ErrSubscriptionMissing),
		errors.Is(err, ErrAmountInvalid),
		errors.Is(err, ErrOrderKeyInvalid),
		errors.Is(err, ErrCampaignRequired),
		errors.Is(err, ErrBankMethodRequired),
		errors.Is(err, ErrNothingToDeliver),
		errors.Is(err, ErrStatusTransition):
		return true
	default:
		return false
	}
}
