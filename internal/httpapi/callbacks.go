package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

// noticeParam — параметр страницы оформления с текстом ошибки для покупателя.
const noticeParam = "svea-notice"

// paymentCallback обрабатывает возврат покупателя с hosted-страницы и серверное уведомление провайдера.
func (a *API) paymentCallback(w http.ResponseWriter, r *http.Request) {
	method := domain.PaymentMethod(chi.URLParam(r, "method"))
	token := r.FormValue("response")
	orderID := r.FormValue("order-id")
	key := r.FormValue("key")
	server := truthy(r.FormValue("svea-callback"))

	if token == "" || orderID == "" || key == "" {
		writeText(w, http.StatusBadRequest, "missing callback parameters")
		return
	}

	logger := a.logger.WithFields(log.Fields{
		"order_id":       orderID,
		"payment_method": method,
		"server":         server,
	})

	out, err := a.engine.HostedCallback(r.Context(), reconcile.HostedPayment{
		OrderID:  orderID,
		Key:      key,
		Token:    token,
		ClientIP: clientIP(r),
	})
	if err != nil && rejectedRequest(err) {
		logger.WithError(err).Warn("payment callback rejected")
		writeText(w, http.StatusBadRequest, "invalid order")
		return
	}

	if server {
		switch {
		case err == nil:
			writeText(w, http.StatusOK, "")
		case reconcile.IsKind(err, reconcile.KindTransport):
			// Провайдер повторит уведомление.
			writeText(w, http.StatusBadGateway, "")
		default:
			logger.WithError(err).Info("payment callback reported failure")
			writeText(w, http.StatusOK, "")
		}
		return
	}

	if err != nil {
		logger.WithError(err).Info("hosted payment failed")
		http.Redirect(w, r, a.checkoutNotice(a.engine.CustomerMessage(method, r.Header.Get("Accept-Language"), err)), http.StatusFound)
		return
	}
	target := out.RedirectURL
	if target == "" {
		target = a.engine.Links().Checkout()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// strongAuthCallback — возврат покупателя после идентификации: /strong-auth/confirmed или /strong-auth/rejected.
func (a *API) strongAuthCallback(w http.ResponseWriter, r *http.Request) {
	result := chi.URLParam(r, "result")
	orderID := r.FormValue("order-id")
	key := r.FormValue("key")
	if orderID == "" || key == "" {
		writeText(w, http.StatusBadRequest, "missing callback parameters")
		return
	}
	if result != "confirmed" && result != "rejected" {
		writeText(w, http.StatusNotFound, "unknown strong authentication result")
		return
	}

	order, err := a.orders.Get(orderID)
	if err != nil || order.Key != key {
		writeText(w, http.StatusBadRequest, "invalid order")
		return
	}

	var out reconcile.Outcome
	if result == "confirmed" {
		out, err = a.engine.FinishStrongAuth(r.Context(), orderID)
	} else {
		out, err = a.engine.RejectStrongAuth(r.Context(), orderID)
	}
	if err != nil {
		a.logger.WithError(err).WithField("order_id", orderID).Error("strong authentication callback failed")
		http.Redirect(w, r, a.checkoutNotice(a.engine.CustomerMessage(order.PaymentMethod, r.Header.Get("Accept-Language"), err)), http.StatusFound)
		return
	}

	target := out.RedirectURL
	if result == "rejected" && !out.NoOp {
		target = a.checkoutNotice(out.Message)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// rejectedRequest — заказ не найден или ключ не совпал.
func rejectedRequest(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrOrderKeyInvalid)
}

func (a *API) checkoutNotice(message string) string {
	target := a.engine.Links().Checkout()
	if message == "" {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + url.Values{noticeParam: {message}}.Encode()
}
