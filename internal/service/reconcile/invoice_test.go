package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
)

func TestInvoiceCreateDeliverScenario(t *testing.T) {
	h := newHarness(t)
	h.seed(t, newOrder("100", domain.PaymentMethodInvoice))
	h.vendor.Enqueue(gateway.CallCreate, domain.VendorResponse{Accepted: true, OrderID: "INV-1"}, nil)

	out, err := h.reconcile(t, domain.OperationCreate, "100")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, out.Status)
	require.Contains(t, out.RedirectURL, "/checkout/order-received/100")

	order := h.order(t, "100")
	require.Equal(t, "INV-1", order.Meta.VendorOrderID)
	require.Equal(t, domain.OrderStatusPaid, order.Status)
	require.Equal(t, 1, order.Items[0].VendorRowNumber)
	require.Equal(t, 2, order.Items[1].VendorRowNumber)
	require.Equal(t, 1, h.cart.count())

	out, err = h.reconcile(t, domain.OperationDeliver, "100")
	require.NoError(t, err)
	require.False(t, out.NoOp)
	require.Equal(t, "All items have been delivered in Svea.", out.Message)
	require.Equal(t, domain.OrderStatusCompleted, out.Status)

	order = h.order(t, "100")
	for _, item := range order.Items {
		require.True(t, item.Delivered(), "item %s", item.ID)
		require.NotEmpty(t, item.VendorInvoiceID)
	}

	calls := h.vendor.CallCount("")
	out, err = h.reconcile(t, domain.OperationDeliver, "100")
	require.NoError(t, err)
	require.True(t, out.NoOp)
	require.Equal(t, "already delivered", out.Message)
	require.Equal(t, calls, h.vendor.CallCount(""), "repeated deliver must not call the vendor")
}

func TestInvoiceCreateAttemptCounter(t *testing.T) {
	h := newHarness(t)
	h.seed(t, newOrder("101", domain.PaymentMethodInvoice))
	h.vendor.Enqueue(gateway.CallCreate, domain.VendorResponse{}, errors.New("dial tcp: i/o timeout"))
	h.vendor.Enqueue(gateway.CallCreate, domain.VendorResponse{}, errors.New("dial tcp: i/o timeout"))
	h.vendor.Enqueue(gateway.CallCreate, domain.VendorResponse{Accepted: true, OrderID: "INV-101"}, nil)

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := h.reconcile(t, domain.OperationCreate, "101")
		require.Error(t, err)
		require.True(t, IsKind(err, KindTransport), "attempt %d: %v", attempt, err)
		require.Empty(t, h.order(t, "101").Meta.VendorOrderID)
		require.Equal(t, domain.OrderStatusPending, h.order(t, "101").Status)
	}

	_, err := h.reconcile(t, domain.OperationCreate, "101")
	require.NoError(t, err)

	var numbers []string
	for _, call := range h.vendor.Calls() {
		req, ok := call.Request.(domain.CreateRequest)
		require.True(t, ok)
		numbers = append(numbers, req.ClientOrderNumber)
	}
	require.Equal(t, []string{"101_1", "101_2", "101_3"}, numbers)
	require.Equal(t, "INV-101", h.order(t, "101").Meta.VendorOrderID)
	require.Equal(t, 3, h.order(t, "101").Meta.AttemptCounter)
}

func TestInvoiceCreateRejectedKeepsStatus(t *testing.T) {
	h := newHarness(t)
	h.seed(t, newOrder("102", domain.PaymentMethodInvoice))
	h.vendor.Reject(gateway.CallCreate, 30002, "CreditCheck failed")

	_, err := h.reconcile(t, domain.OperationCreate, "102")
	require.Error(t, err)

	rerr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindVendorRejected, rerr.Kind)
	require.Equal(t, 30002, rerr.ResultCode)
	require.Equal(t, "CreditCheck failed", rerr.OperatorMessage())

	order := h.order(t, "102")
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Zero(t, h.cart.count())
	require.Contains(t, h.notes(t, "102"), "Customer received error: Based upon the performed credit check the request was rejected.")
	require.Len(t, h.events(t, EventVendorOperationFailed), 1)
}

func TestInvoiceCreateWithExistingVendorOrder(t *testing.T) {
	h := newHarness(t)
	order := newOrder("103", domain.PaymentMethodInvoice)
	order.Meta.VendorOrderID = "INV-9"
	h.seed(t, order)

	_, err := h.reconcile(t, domain.OperationCreate, "103")
	require.True(t, IsKind(err, KindPrecondition))
	require.ErrorIs(t, err, domain.ErrVendorOrderExists)
	require.Zero(t, h.vendor.CallCount(""))
}

func TestInvoiceCreateMirrorsIdentity(t *testing.T) {
	h := newHarness(t)
	order := newOrder("104", domain.PaymentMethodInvoice)
	order.SubscriptionIDs = []string{"sub-1"}
	h.seed(t, order)
	require.NoError(t, h.subs.Save(domain.Subscription{ID: "sub-1", ParentOrderID: "104"}))

	_, err := h.reconcile(t, domain.OperationCreate, "104")
	require.NoError(t, err)

	sub, err := h.subs.Get("sub-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentMethodInvoice, sub.PaymentMethod)
	require.Equal(t, "194605092222", sub.Identity.NationalID)
}

func TestInvoiceZeroTotalSubscription(t *testing.T) {
	h := newHarness(t)
	order := newOrder("105", domain.PaymentMethodInvoice, domain.LineItem{
		ID: "trial", Type: domain.LineItemProduct, Quantity: 1,
	})
	order.SubscriptionIDs = []string{"sub-5"}
	h.seed(t, order)

	out, err := h.reconcile(t, domain.OperationCreate, "105")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, out.Status)
	require.Zero(t, h.vendor.CallCount(""))
	require.Empty(t, h.order(t, "105").Meta.VendorOrderID)
}

func TestInvoiceDeliverSubsetIsIdempotent(t *testing.T) {
	h := newHarness(t)
	order := newOrder("110", domain.PaymentMethodInvoice)
	order.Status = domain.OrderStatusPaid
	order.Meta.VendorOrderID = "INV-110"
	h.seed(t, order)

	rows := []domain.VendorRow{
		{RowNumber: 1, ArticleNumber: "SKU-A"},
		{RowNumber: 2, ArticleNumber: "SKU-B"},
	}
	h.vendor.Enqueue(gateway.CallQuery, domain.VendorResponse{Accepted: true, Rows: rows}, nil)
	h.vendor.Enqueue(gateway.CallDeliver, domain.VendorResponse{Accepted: true, InvoiceID: "1001"}, nil)

	out, err := h.reconcile(t, domain.OperationDeliver, "110", "A")
	require.NoError(t, err)
	require.Equal(t, "1 item has been delivered in Svea.", out.Message)
	require.Equal(t, domain.OrderStatusPaid, out.Status)

	var deliver domain.DeliverRequest
	for _, call := range h.vendor.Calls() {
		if call.Call == gateway.CallDeliver {
			deliver = call.Request.(domain.DeliverRequest)
		}
	}
	require.Equal(t, []int{1}, deliver.RowNumbers)
	require.Equal(t, "Post", deliver.DistributionType)

	stored := h.order(t, "110")
	item, _ := stored.Item("A")
	require.True(t, item.Delivered())
	require.Equal(t, "1001", item.VendorInvoiceID)
	deliveredAt := *item.DeliveredAt

	out, err = h.reconcile(t, domain.OperationDeliver, "110", "A")
	require.NoError(t, err)
	require.True(t, out.NoOp)
	require.Equal(t, 1, h.vendor.CallCount(gateway.CallDeliver))

	stored = h.order(t, "110")
	item, _ = stored.Item("A")
	require.Equal(t, deliveredAt, *item.DeliveredAt)
}

func TestInvoiceDeliverSubsetNoMatchingRows(t *testing.T) {
	h := newHarness(t)
	order := newOrder("111", domain.PaymentMethodInvoice)
	order.Status = domain.OrderStatusPaid
	order.Meta.VendorOrderID = "INV-111"
	h.seed(t, order)
	h.vendor.Enqueue(gateway.CallQuery, domain.VendorResponse{Accepted: true}, nil)

	_, err := h.reconcile(t, domain.OperationDeliver, "111", "B")
	require.ErrorIs(t, err, domain.ErrNothingToDeliver)
	rerr, _ := AsError(err)
	require.Equal(t, "There are no order rows to deliver", rerr.OperatorMessage())
	require.Zero(t, h.vendor.CallCount(gateway.CallDeliver))
}

func TestInvoiceDeliverRemainingRows(t *testing.T) {
	h := newHarness(t)
	order := delivered(newOrder("112", domain.PaymentMethodInvoice), map[string]string{"A": "1001"})
	order.Status = domain.OrderStatusPaid
	order.Meta.VendorOrderID = "INV-112"
	h.seed(t, order)

	out, err := h.reconcile(t, domain.OperationDeliver, "112")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, out.Status)
	require.Equal(t, []string{"B"}, out.Items)

	calls := h.vendor.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, []int{2}, calls[0].Request.(domain.DeliverRequest).RowNumbers)
}

func TestInvoiceCreditRequiresDelivery(t *testing.T) {
	h := newHarness(t)
	order := delivered(newOrder("120", domain.PaymentMethodInvoice), map[string]string{"A": "1001"})
	order.Status = domain.OrderStatusPaid
	order.Meta.VendorOrderID = "INV-120"
	h.seed(t, order)

	_, err := h.reconcile(t, domain.OperationCredit, "120")
	require.ErrorIs(t, err, domain.ErrNotYetDelivered)
	require.True(t, IsKind(err, KindPrecondition))
	require.Zero(t, h.vendor.CallCount(""))

	stored := h.order(t, "120")
	for _, item := range stored.Items {
		require.False(t, item.Credited())
	}
}

func TestInvoiceCreditGroupsStopOnFailure(t *testing.T) {
	h := newHarness(t)
	items := []domain.LineItem{
		{ID: "A", Type: domain.LineItemProduct, ArticleNumber: "SKU-A", Quantity: 1, UnitPriceExVatMinor: 1000, VatPercent: 25},
		{ID: "B", Type: domain.LineItemProduct, ArticleNumber: "SKU-B", Quantity: 1, UnitPriceExVatMinor: 1000, VatPercent: 25},
		{ID: "C", Type: domain.LineItemProduct, ArticleNumber: "SKU-C", Quantity: 1, UnitPriceExVatMinor: 1000, VatPercent: 25},
	}
	order := delivered(newOrder("121", domain.PaymentMethodInvoice, items...), map[string]string{
		"A": "1001", "B": "1002", "C": "1003",
	})
	order.Status = domain.OrderStatusCompleted
	order.Meta.VendorOrderID = "INV-121"
	h.seed(t, order)

	h.vendor.Enqueue(gateway.CallCredit, domain.VendorResponse{Accepted: true}, nil)
	h.vendor.Reject(gateway.CallCredit, 24000, "Invoice amount exceeds the authorized amount")

	_, err := h.reconcile(t, domain.OperationCredit, "121")
	require.Error(t, err)
	rerr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindVendorRejected, rerr.Kind)
	require.Equal(t, 2, rerr.Group)
	require.Equal(t, "Invoice amount exceeds the authorized amount", rerr.OperatorMessage())

	require.Equal(t, 2, h.vendor.CallCount(gateway.CallCredit), "group 3 must not be attempted")
	credits := h.vendor.Calls()
	require.Equal(t, "1001", credits[0].Request.(domain.CreditRequest).InvoiceID)
	require.Equal(t, "1002", credits[1].Request.(domain.CreditRequest).InvoiceID)

	stored := h.order(t, "121")
	a, _ := stored.Item("A")
	b, _ := stored.Item("B")
	c, _ := stored.Item("C")
	require.True(t, a.Credited())
	require.False(t, b.Credited())
	require.False(t, c.Credited())
	require.Equal(t, domain.OrderStatusCompleted, stored.Status)
}

func TestInvoiceCreditFullAndIdempotent(t *testing.T) {
	h := newHarness(t)
	order := delivered(newOrder("122", domain.PaymentMethodInvoice), map[string]string{"A": "1001", "B": "1001"})
	order.Status = domain.OrderStatusCompleted
	order.Meta.VendorOrderID = "INV-122"
	h.seed(t, order)

	out, err := h.reconcile(t, domain.OperationCredit, "122")
	require.NoError(t, err)
	require.Equal(t, "All items have been credited in Svea.", out.Message)
	require.Equal(t, domain.OrderStatusRefunded, out.Status)
	require.Equal(t, 1, h.vendor.CallCount(gateway.CallCredit))
	require.Equal(t, []int{1, 2}, h.vendor.Calls()[0].Request.(domain.CreditRequest).RowNumbers)

	out, err = h.reconcile(t, domain.OperationCredit, "122")
	require.NoError(t, err)
	require.True(t, out.NoOp)
	require.Equal(t, "already credited", out.Message)
	require.Equal(t, 1, h.vendor.CallCount(""))
}

func TestInvoiceCreditSubsetMessage(t *testing.T) {
	h := newHarness(t)
	order := delivered(newOrder("123", domain.PaymentMethodInvoice), map[string]string{"A": "1001", "B": "1001"})
	order.Status = domain.OrderStatusCompleted
	order.Meta.VendorOrderID = "INV-123"
	h.seed(t, order)

	out, err := h.reconcile(t, domain.OperationCredit, "123", "B")
	require.NoError(t, err)
	require.Equal(t, "1 item has been credited in Svea.", out.Message)
	require.Equal(t, domain.OrderStatusCompleted, out.Status)
}

func TestStatusNeverMovesBackward(t *testing.T) {
	h := newHarness(t)
	order := delivered(newOrder("124", domain.PaymentMethodInvoice), map[string]string{"A": "1001", "B": "1001"})
	order.Status = domain.OrderStatusCompleted
	order.Meta.VendorOrderID = "INV-124"
	h.seed(t, order)

	_, err := h.reconcile(t, domain.OperationCredit, "124")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, h.order(t, "124").Status)

	// Провайдер принимает отмену, но refunded: конечный статус.
	_, err = h.reconcile(t, domain.OperationCancel, "124")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRefunded, h.order(t, "124").Status)

	for _, msg := range h.events(t, EventOrderStatusChanged) {
		require.NotContains(t, string(msg.Payload), `"status":"paid"`)
		require.NotContains(t, string(msg.Payload), `"status":"pending"`)
	}
}

func TestInvoiceCancel(t *testing.T) {
	h := newHarness(t)
	order := newOrder("125", domain.PaymentMethodInvoice)
	order.Status = domain.OrderStatusPaid
	order.Meta.VendorOrderID = "INV-125"
	h.seed(t, order)

	out, err := h.reconcile(t, domain.OperationCancel, "125")
	require.NoError(t, err)
	require.Equal(t, "The order has been cancelled in Svea.", out.Message)
	require.Equal(t, domain.OrderStatusCancelled, h.order(t, "125").Status)
	require.Contains(t, h.notes(t, "125"), "The order has been cancelled in Svea.")
	require.Len(t, h.events(t, EventVendorOperationSucceeded), 1)
}

func TestOperationsRequireVendorOrder(t *testing.T) {
	h := newHarness(t)
	h.seed(t, newOrder("126", domain.PaymentMethodInvoice))

	for _, op := range []domain.Operation{domain.OperationDeliver, domain.OperationCredit, domain.OperationCancel} {
		_, err := h.reconcile(t, op, "126")
		require.ErrorIs(t, err, domain.ErrVendorOrderMissing, "operation %s", op)
	}
	require.Zero(t, h.vendor.CallCount(""))
}

func TestUnknownLineItem(t *testing.T) {
	h := newHarness(t)
	order := newOrder("127", domain.PaymentMethodInvoice)
	order.Meta.VendorOrderID = "INV-127"
	h.seed(t, order)

	_, err := h.reconcile(t, domain.OperationDeliver, "127", "Z")
	require.ErrorIs(t, err, domain.ErrLineItemUnknown)
}

func TestInvoiceRefundAmount(t *testing.T) {
	h := newHarness(t)
	order := delivered(newOrder("130", domain.PaymentMethodInvoice), map[string]string{"A": "1001", "B": "1001"})
	order.Status = domain.OrderStatusCompleted
	order.Meta.VendorOrderID = "INV-130"
	h.seed(t, order)

	ctx := context.Background()
	_, err := h.engine.Reconcile(ctx, domain.Intent{Operation: domain.OperationRefundAmount, OrderID: "130", AmountMinor: order.TotalMinor + 1})
	require.ErrorIs(t, err, domain.ErrAmountInvalid)
	require.Zero(t, h.vendor.CallCount(""))

	h.vendor.Enqueue(gateway.CallQuery, domain.VendorResponse{Accepted: true, Rows: []domain.VendorRow{{RowNumber: 1, InvoiceID: "1001"}}}, nil)
	out, err := h.engine.Reconcile(ctx, domain.Intent{Operation: domain.OperationRefundAmount, OrderID: "130", AmountMinor: 1500, Reason: "damaged"})
	require.NoError(t, err)
	require.Equal(t, "15.00 SEK has been refunded in Svea.", out.Message)
	require.Equal(t, domain.OrderStatusCompleted, h.order(t, "130").Status)

	credit := h.vendor.Calls()[1].Request.(domain.CreditRequest)
	require.Equal(t, "1001", credit.InvoiceID)
	require.Equal(t, "Refund: damaged", credit.Rows[0].Name)
	require.Equal(t, int64(1500), credit.Rows[0].UnitPriceExVatMinor)
}

func TestInvoiceRefundAmountBeforeDelivery(t *testing.T) {
	h := newHarness(t)
	order := newOrder("131", domain.PaymentMethodInvoice)
	order.Status = domain.OrderStatusPaid
	order.Meta.VendorOrderID = "INV-131"
	h.seed(t, order)
	h.vendor.Enqueue(gateway.CallQuery, domain.VendorResponse{Accepted: true, Rows: []domain.VendorRow{{RowNumber: 1}}}, nil)

	_, err := h.engine.Reconcile(context.Background(), domain.Intent{Operation: domain.OperationRefundAmount, OrderID: "131", AmountMinor: 100})
	require.ErrorIs(t, err, domain.ErrNotYetDelivered)
	rerr, _ := AsError(err)
	require.Equal(t, "You have to deliver the order at Svea first", rerr.OperatorMessage())
	require.Zero(t, h.vendor.CallCount(gateway.CallCredit))
}

func TestInvoiceRenewUsesSubscriptionIdentity(t *testing.T) {
	h := newHarness(t)
	order := newOrder("140", domain.PaymentMethodInvoice)
	order.Customer.NationalID = ""
	order.SubscriptionIDs = []string{"sub-40"}
	h.seed(t, order)
	require.NoError(t, h.subs.Save(domain.Subscription{
		ID:       "sub-40",
		Identity: domain.Identity{CustomerType: domain.CustomerIndividual, NationalID: "194605092222"},
	}))

	out, err := h.engine.Reconcile(context.Background(), domain.Intent{Operation: domain.OperationRenew, OrderID: "140"})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, out.Status)

	req := h.vendor.Calls()[0].Request.(domain.CreateRequest)
	require.Equal(t, "194605092222", req.Customer.NationalID)
	require.Empty(t, req.ConfirmationURL)
}

func TestInvoiceRenewFailureMarksOrderFailed(t *testing.T) {
	h := newHarness(t)
	order := newOrder("141", domain.PaymentMethodInvoice)
	order.SubscriptionIDs = []string{"sub-41"}
	h.seed(t, order)
	require.NoError(t, h.subs.Save(domain.Subscription{ID: "sub-41"}))
	h.vendor.Reject(gateway.CallCreate, 30003, "Customer not found")

	_, err := h.engine.Reconcile(context.Background(), domain.Intent{Operation: domain.OperationRenew, OrderID: "141"})
	require.Error(t, err)
	require.Equal(t, domain.OrderStatusFailed, h.order(t, "141").Status)
	require.Contains(t, h.notes(t, "141"), "Error occurred whilst processing subscription: Customer not found")
}
