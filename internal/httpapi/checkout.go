package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/service/checkout"
)

// checkoutRequest — поля формы оформления для выбранного способа оплаты.
type checkoutRequest struct {
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	Locale          string               `json:"locale"`
	CustomerType    domain.CustomerType  `json:"customer_type"`
	NationalID      string               `json:"national_id"`
	OrgNumber       string               `json:"org_number"`
	VATNumber       string               `json:"vat_number"`
	Initials        string               `json:"initials"`
	BirthYear       int                  `json:"birth_year"`
	BirthMonth      int                  `json:"birth_month"`
	BirthDay        int                  `json:"birth_day"`
	AddressSelector string               `json:"address_selector"`
	Campaign        string               `json:"campaign"`
	BankMethod      string               `json:"bank_method"`
}

func (c checkoutRequest) fields() checkout.Fields {
	return checkout.Fields{
		CustomerType:    c.CustomerType,
		NationalID:      c.NationalID,
		OrgNumber:       c.OrgNumber,
		VATNumber:       c.VATNumber,
		Initials:        c.Initials,
		BirthDate:       domain.BirthDate{Year: c.BirthYear, Month: c.BirthMonth, Day: c.BirthDay},
		AddressSelector: c.AddressSelector,
		Campaign:        c.Campaign,
		BankMethod:      c.BankMethod,
	}
}

type checkoutResponse struct {
	Result   string   `json:"result"`
	Redirect string   `json:"redirect,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

func failure(messages ...string) checkoutResponse {
	return checkoutResponse{Result: "failure", Messages: messages}
}

// checkout проверяет поля, сохраняет их в заказ и запускает оплату.
// Покупатель получает только локализованные тексты, без сырых ответов провайдера.
func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure(a.engine.CustomerMessage("", r.Header.Get("Accept-Language"), err)))
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = r.Header.Get("Accept-Language")
	}

	order, err := a.orders.Get(orderID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, failure(a.engine.CustomerMessage(order.PaymentMethod, locale, err)))
		return
	}
	if req.PaymentMethod != "" {
		order.PaymentMethod = req.PaymentMethod
	}
	method := order.PaymentMethod
	logger := a.logger.WithFields(log.Fields{"order_id": orderID, "payment_method": method})

	if err := checkout.Validate(method, order.BillingCountry, req.fields()); err != nil {
		var verrs checkout.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusOK, failure(verrs.Messages()...))
			return
		}
		writeJSON(w, http.StatusOK, failure(a.engine.CustomerMessage(method, locale, err)))
		return
	}

	// Заказ, уже созданный у провайдера, не меняется: Create вернёт отказ по предусловию.
	if !order.HasVendorOrder() {
		if err := a.prepare(&order, req); err != nil {
			logger.WithError(err).Warn("checkout fields could not be stored")
			writeJSON(w, http.StatusConflict, failure(a.engine.CustomerMessage(method, locale, err)))
			return
		}
	}

	out, err := a.engine.Reconcile(r.Context(), domain.Intent{
		Operation:     domain.OperationCreate,
		OrderID:       orderID,
		PaymentMethod: method,
	})
	if err != nil {
		logger.WithError(err).Info("checkout payment failed")
		writeJSON(w, http.StatusOK, failure(a.engine.CustomerMessage(method, locale, err)))
		return
	}

	redirect := out.RedirectURL
	if redirect == "" {
		redirect = a.engine.Links().OrderReceived(&order)
	}
	writeJSON(w, http.StatusOK, checkoutResponse{Result: "success", Redirect: redirect})
}

// prepare переносит поля оформления и сбор за счёт в заказ и сохраняет его.
func (a *API) prepare(order *domain.Order, req checkoutRequest) error {
	if err := checkout.Apply(order, req.fields()); err != nil {
		return err
	}
	if order.PaymentMethod == domain.PaymentMethodInvoice {
		if settings, ok := a.engine.Settings().Method(order.PaymentMethod); ok {
			if country, ok := settings.Country(order.BillingCountry); ok {
				if _, err := checkout.AppendInvoiceFee(order, country.InvoiceFee); err != nil {
					return err
				}
			}
		}
	}
	return a.orders.Save(*order)
}
