package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderStatus описывает жизненный цикл заказа в магазине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — провайдер принял заказ.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCompleted — все позиции доставлены.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — заказ полностью возвращён.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusFailed — попытка оплаты завершилась ошибкой.
	OrderStatusFailed OrderStatus = "failed"
)

// Переходы только вперёд: pending → paid → completed | refunded, либо вбок в cancelled/failed.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:      {OrderStatusCompleted, OrderStatusRefunded, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusCompleted: {OrderStatusRefunded},
	OrderStatusFailed:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusCancelled: nil,
	OrderStatusRefunded:  nil,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo сообщает, допустим ли переход s → next. Переход в тот же статус не считается переходом.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal — из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(statusTransitions[s]) == 0
}

// LineItemType — вид позиции заказа.
type LineItemType string

const (
	LineItemProduct  LineItemType = "product"
	LineItemFee      LineItemType = "fee"
	LineItemShipping LineItemType = "shipping"
)

// Valid проверяет тип позиции.
func (t LineItemType) Valid() bool {
	switch t {
	case LineItemProduct, LineItemFee, LineItemShipping:
		return true
	default:
		return false
	}
}

// LineItem представляет одну позицию заказа (товар, сбор или доставку).
type LineItem struct {
	ID   string
	Type LineItemType
	Name string
	// ArticleNumber — номер артикула, по которому строка сопоставляется со строкой у провайдера.
	ArticleNumber       string
	Quantity            int32
	UnitPriceExVatMinor int64
	VatPercent          float64
	// DeliveredAt и CreditedAt ставятся один раз и больше не меняются.
	DeliveredAt *time.Time
	CreditedAt  *time.Time
	// VendorRowNumber — номер строки у провайдера (1-based), 0 если неизвестен.
	VendorRowNumber int
	// VendorInvoiceID — счёт, в который попала строка при доставке.
	VendorInvoiceID string
}

// Delivered сообщает, выставлен ли маркер доставки.
func (i LineItem) Delivered() bool { return i.DeliveredAt != nil }

// Credited сообщает, выставлен ли маркер возврата.
func (i LineItem) Credited() bool { return i.CreditedAt != nil }

// TotalExVatMinor — сумма позиции без НДС.
func (i LineItem) TotalExVatMinor() int64 {
	return int64(i.Quantity) * i.UnitPriceExVatMinor
}

// TotalIncVatMinor — сумма позиции с НДС, округлённая до минимальной единицы.
func (i LineItem) TotalIncVatMinor() int64 {
	ex := float64(i.TotalExVatMinor())
	return int64(math.Round(ex * (1 + i.VatPercent/100)))
}

// OrderMeta — типизированные метаданные заказа.
type OrderMeta struct {
	// VendorOrderID — идентификатор заказа у провайдера; единственный признак, что заказ у провайдера существует.
	VendorOrderID string
	// AttemptCounter — сквозной счётчик попыток оплаты.
	AttemptCounter int
	// VendorSubscriptionID — идентификатор подписки у провайдера (карточные рекурренты).
	VendorSubscriptionID string
	// StrongAuthPending — заказ ждёт завершения строгой аутентификации.
	StrongAuthPending   bool
	PaymentPlanCampaign string
	BankMethod          string
}

// Order агрегирует состояние заказа, его позиции и метаданные.
type Order struct {
	ID string
	// Number — номер заказа, видимый покупателю и провайдеру.
	Number string
	// Key — секрет заказа, которым подписаны ссылки callback.
	Key             string
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	BillingCountry  string
	Currency        string
	TotalMinor      int64
	TaxMinor        int64
	Customer        Customer
	Items           []LineItem
	Meta            OrderMeta
	SubscriptionIDs []string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasVendorOrder сообщает, есть ли у заказа соответствующий заказ у провайдера.
func (o *Order) HasVendorOrder() bool {
	return o.Meta.VendorOrderID != ""
}

// ClientOrderNumber — номер заказа для провайдера с суффиксом текущей попытки.
func (o *Order) ClientOrderNumber() string {
	number := o.Number
	if number == "" {
		number = o.ID
	}
	return fmt.Sprintf("%s_%d", number, o.Meta.AttemptCounter)
}

// Item возвращает указатель на позицию заказа по идентификатору.
func (o *Order) Item(id string) (*LineItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// AllDelivered сообщает, доставлены ли все позиции.
func (o *Order) AllDelivered() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if !item.Delivered() {
			return false
		}
	}
	return true
}

// AllCredited сообщает, возвращены ли все позиции.
func (o *Order) AllCredited() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if !item.Credited() {
			return false
		}
	}
	return true
}

// AnyDelivered сообщает, доставлена ли хотя бы одна позиция.
func (o *Order) AnyDelivered() bool {
	for _, item := range o.Items {
		if item.Delivered() {
			return true
		}
	}
	return false
}

// IsSubscription — заказ связан хотя бы с одной подпиской.
func (o *Order) IsSubscription() bool {
	return len(o.SubscriptionIDs) > 0
}

// Transition переводит заказ в новый статус. Возвращает false, если статус уже установлен.
func (o *Order) Transition(next OrderStatus, at time.Time) (bool, error) {
	if o.Status == next {
		return false, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrStatusTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	return true, nil
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	dst := o
	if o.Items != nil {
		dst.Items = make([]LineItem, len(o.Items))
		for i, item := range o.Items {
			dst.Items[i] = item.clone()
		}
	}
	if o.SubscriptionIDs != nil {
		dst.SubscriptionIDs = append([]string(nil), o.SubscriptionIDs...)
	}
	return dst
}

func (i LineItem) clone() LineItem {
	dst := i
	if i.DeliveredAt != nil {
		t := *i.DeliveredAt
		dst.DeliveredAt = &t
	}
	if i.CreditedAt != nil {
		t := *i.CreditedAt
		dst.CreditedAt = &t
	}
	return dst
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.BillingCountry == "" {
		errs = append(errs, ErrCountryRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	seen := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if !item.Type.Valid() {
			errs = append(errs, ErrItemTypeInvalid)
		}
		if _, dup := seen[item.ID]; dup {
			errs = append(errs, ErrItemDuplicate)
		}
		seen[item.ID] = struct{}{}
	}

	return errs
}
