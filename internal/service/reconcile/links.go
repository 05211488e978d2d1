package reconcile

import (
	"net/url"
	"strings"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// Links строит публичные адреса магазина: возврат с оплаты, callback-и, страницы результата.
type Links struct {
	base string
}

// NewLinks создаёт построитель адресов от публичного базового URL.
func NewLinks(baseURL string) Links {
	return Links{base: strings.TrimRight(baseURL, "/")}
}

// OrderReceived — страница подтверждения заказа.
func (l Links) OrderReceived(order *domain.Order) string {
	return l.base + "/checkout/order-received/" + url.PathEscape(order.ID) + "?" + orderQuery(order).Encode()
}

// Checkout — страница оформления заказа.
func (l Links) Checkout() string {
	return l.base + "/checkout"
}

// PaymentCallback — адрес возврата с hosted-страницы. server=true — вызов сервер-сервер от провайдера.
func (l Links) PaymentCallback(method domain.PaymentMethod, order *domain.Order, server bool) string {
	q := orderQuery(order)
	if server {
		q.Set("svea-callback", "1")
	}
	return l.base + "/callbacks/" + string(method) + "/payment?" + q.Encode()
}

// StrongAuth — адреса завершения идентификации покупателя.
func (l Links) StrongAuth(method domain.PaymentMethod, order *domain.Order, confirmed bool) string {
	outcome := "rejected"
	if confirmed {
		outcome = "confirmed"
	}
	return l.base + "/callbacks/" + string(method) + "/strong-auth/" + outcome + "?" + orderQuery(order).Encode()
}

func orderQuery(order *domain.Order) url.Values {
	q := url.Values{}
	q.Set("order-id", order.ID)
	q.Set("key", order.Key)
	return q
}
