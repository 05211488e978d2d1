package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
	"github.com/vladislavdragonenkov/sveapay/internal/service/checkout"
)

func individual() checkoutRequest {
	return checkoutRequest{CustomerType: domain.CustomerIndividual, NationalID: "194605092222"}
}

func TestCheckoutInvoiceSuccess(t *testing.T) {
	ts := newTestServer(t, func(s *gateway.Settings) {
		m := s.Methods[domain.PaymentMethodInvoice]
		se := m.Countries["SE"]
		se.InvoiceFee = &gateway.InvoiceFee{Label: "Invoice fee", AmountExVatMinor: 2900, VatPercent: 25}
		m.Countries = map[string]gateway.CountrySettings{"SE": se}
		s.Methods[domain.PaymentMethodInvoice] = m
	})
	ts.seed(t, testOrder("200", domain.PaymentMethodInvoice))
	ts.vendor.Enqueue(gateway.CallCreate, domain.VendorResponse{Accepted: true, OrderID: "INV-200"}, nil)

	resp := ts.json(t, http.MethodPost, "/checkout/200", individual())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[checkoutResponse](t, resp)
	require.Equal(t, "success", body.Result, body.Messages)
	require.Contains(t, body.Redirect, "/checkout/order-received/200")

	order := ts.order(t, "200")
	require.Equal(t, domain.OrderStatusPaid, order.Status)
	require.Equal(t, "INV-200", order.Meta.VendorOrderID)
	require.Equal(t, "194605092222", order.Customer.NationalID)
	fee, ok := order.Item(checkout.InvoiceFeeItemID)
	require.True(t, ok, "invoice fee must be appended")
	require.Equal(t, domain.LineItemFee, fee.Type)

	cleared, err := ts.outbox.PullPending(100)
	require.NoError(t, err)
	var clears int
	for _, msg := range cleared {
		if msg.EventType == "CartClearRequested" {
			clears++
		}
	}
	require.Equal(t, 1, clears)
}

func TestCheckoutValidationFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, testOrder("201", domain.PaymentMethodInvoice))

	resp := ts.json(t, http.MethodPost, "/checkout/201", checkoutRequest{CustomerType: domain.CustomerIndividual})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[checkoutResponse](t, resp)
	require.Equal(t, "failure", body.Result)
	require.Equal(t, []string{"Personal number is required."}, body.Messages)
	require.Zero(t, ts.vendor.CallCount(""))
}

func TestCheckoutVendorRejectionIsLocalized(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, testOrder("202", domain.PaymentMethodInvoice))
	ts.vendor.Reject(gateway.CallCreate, 30000, "Rejected by credit check")

	req := individual()
	req.Locale = "sv"
	resp := ts.json(t, http.MethodPost, "/checkout/202", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[checkoutResponse](t, resp)
	require.Equal(t, "failure", body.Result)
	require.Equal(t, []string{"Kreditupplysningen avslogs."}, body.Messages)
	require.Equal(t, domain.OrderStatusPending, ts.order(t, "202").Status)
}

func TestCheckoutUnknownOrder(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.json(t, http.MethodPost, "/checkout/missing", individual())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[checkoutResponse](t, resp)
	require.Equal(t, "failure", body.Result)
	require.Len(t, body.Messages, 1)
}

func TestCheckoutCardRedirectsToHostedPage(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, testOrder("203", domain.PaymentMethodCard))
	ts.vendor.Enqueue(gateway.CallCreate, domain.VendorResponse{Accepted: true, RedirectURL: "https://pay.example/203"}, nil)

	resp := ts.json(t, http.MethodPost, "/checkout/203", checkoutRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[checkoutResponse](t, resp)
	require.Equal(t, "success", body.Result, body.Messages)
	require.Equal(t, "https://pay.example/203", body.Redirect)
}
