package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/version"
)

// Имена вызовов шлюза; совпадают с путями на стороне моста провайдера.
const (
	CallCreate         = "create"
	CallQuery          = "query"
	CallDeliver        = "deliver"
	CallCredit         = "credit"
	CallCancel         = "cancel"
	CallRecur          = "recur"
	CallHostedResponse = "hosted-response"
)

const maxResponseBytes = 1 << 20

// HTTPClient — реализация VendorClient поверх JSON/HTTP моста провайдера.
type HTTPClient struct {
	client    *http.Client
	breaker   *Breaker
	responses *documentSchema
	tracer    trace.Tracer
	timeout   time.Duration
	logger    *log.Entry
}

// Option настраивает HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient заменяет HTTP-клиент (например, на клиент httptest-сервера).
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithBreaker задаёт общий circuit breaker.
func WithBreaker(b *Breaker) Option {
	return func(h *HTTPClient) {
		if b != nil {
			h.breaker = b
		}
	}
}

// WithTimeout задаёт таймаут одного вызова.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPClient создаёт клиент шлюза. Ошибка возможна только при повреждённой встроенной схеме.
func NewHTTPClient(opts ...Option) (*HTTPClient, error) {
	responses, err := loadSchema("vendor_response.json")
	if err != nil {
		return nil, err
	}

	h := &HTTPClient{
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		responses: responses,
		tracer:    otel.Tracer("github.com/vladislavdragonenkov/sveapay/internal/gateway"),
		timeout:   30 * time.Second,
		logger:    log.New().WithField("component", "gateway"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.breaker == nil {
		h.breaker = NewBreaker(5, 30*time.Second, h.logger)
	}
	return h, nil
}

// Breaker возвращает circuit breaker клиента (для health-check).
func (h *HTTPClient) Breaker() *Breaker {
	return h.breaker
}

type wireAuth struct {
	MerchantID   string `json:"merchant_id,omitempty"`
	Secret       string `json:"secret,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	ClientNumber string `json:"client_number,omitempty"`
}

type wireRequest struct {
	Call    string             `json:"call"`
	Family  domain.OrderFamily `json:"family"`
	Country string             `json:"country"`
	Auth    wireAuth           `json:"auth"`
	Payload any                `json:"payload,omitempty"`
}

type wireCustomer struct {
	Type            domain.CustomerType `json:"type,omitempty"`
	FirstName       string              `json:"first_name,omitempty"`
	LastName        string              `json:"last_name,omitempty"`
	Company         string              `json:"company,omitempty"`
	Email           string              `json:"email,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	Street          string              `json:"street,omitempty"`
	CoAddress       string              `json:"co_address,omitempty"`
	ZipCode         string              `json:"zip_code,omitempty"`
	City            string              `json:"city,omitempty"`
	NationalID      string              `json:"national_id,omitempty"`
	VATNumber       string              `json:"vat_number,omitempty"`
	Initials        string              `json:"initials,omitempty"`
	BirthDate       string              `json:"birth_date,omitempty"`
	AddressSelector string              `json:"address_selector,omitempty"`
	IPAddress       string              `json:"ip_address,omitempty"`
}

type createPayload struct {
	Currency          string             `json:"currency"`
	ClientOrderNumber string             `json:"client_order_number"`
	CustomerReference string             `json:"customer_reference,omitempty"`
	Customer          wireCustomer       `json:"customer"`
	Rows              []domain.VendorRow `json:"rows"`
	ReturnURL         string             `json:"return_url,omitempty"`
	CallbackURL       string             `json:"callback_url,omitempty"`
	CancelURL         string             `json:"cancel_url,omitempty"`
	ConfirmationURL   string             `json:"identification_confirmation_url,omitempty"`
	RejectionURL      string             `json:"identification_rejection_url,omitempty"`
	CampaignCode      string             `json:"campaign_code,omitempty"`
	PaymentMethod     string             `json:"payment_method,omitempty"`
	SubscriptionType  string             `json:"subscription_type,omitempty"`
	Language          string             `json:"language,omitempty"`
}

type orderPayload struct {
	OrderID          string             `json:"order_id"`
	InvoiceID        string             `json:"invoice_id,omitempty"`
	RowNumbers       []int              `json:"row_numbers,omitempty"`
	Rows             []domain.VendorRow `json:"rows,omitempty"`
	DistributionType string             `json:"distribution_type,omitempty"`
}

type recurPayload struct {
	Currency          string             `json:"currency"`
	SubscriptionID    string             `json:"subscription_id"`
	ClientOrderNumber string             `json:"client_order_number"`
	AmountMinor       int64              `json:"amount_minor"`
	Rows              []domain.VendorRow `json:"rows,omitempty"`
}

type hostedPayload struct {
	Response string `json:"response"`
}

// Create создаёт заказ у провайдера (или hosted-сессию оплаты для карты и банка).
func (h *HTTPClient) Create(ctx context.Context, req domain.CreateRequest) (domain.VendorResponse, error) {
	customer := req.Customer
	nationalID := customer.NationalID
	if customer.Type == domain.CustomerCompany && customer.OrgNumber != "" {
		nationalID = customer.OrgNumber
	}

	payload := createPayload{
		Currency:          req.Currency,
		ClientOrderNumber: req.ClientOrderNumber,
		CustomerReference: req.CustomerReference,
		Customer: wireCustomer{
			Type:            customer.Type,
			FirstName:       customer.FirstName,
			LastName:        customer.LastName,
			Company:         customer.Company,
			Email:           customer.Email,
			Phone:           customer.Phone,
			Street:          customer.Address1,
			CoAddress:       customer.Address2,
			ZipCode:         customer.ZipCode,
			City:            customer.City,
			NationalID:      nationalID,
			VATNumber:       customer.VATNumber,
			Initials:        customer.Initials,
			BirthDate:       customer.BirthDate.String(),
			AddressSelector: customer.AddressSelector,
			IPAddress:       customer.IPAddress,
		},
		Rows:             req.Rows,
		ReturnURL:        req.ReturnURL,
		CallbackURL:      req.CallbackURL,
		CancelURL:        req.CancelURL,
		ConfirmationURL:  req.ConfirmationURL,
		RejectionURL:     req.RejectionURL,
		CampaignCode:     req.CampaignCode,
		PaymentMethod:    req.BankMethod,
		SubscriptionType: req.SubscriptionType,
		Language:         req.Language,
	}
	return h.do(ctx, CallCreate, req.Target, payload)
}

// Query запрашивает состояние заказа и пронумерованные строки.
func (h *HTTPClient) Query(ctx context.Context, ref domain.VendorRef) (domain.VendorResponse, error) {
	return h.do(ctx, CallQuery, ref.Target, orderPayload{OrderID: ref.OrderID})
}

// Deliver доставляет заказ целиком или выбранные строки.
func (h *HTTPClient) Deliver(ctx context.Context, req domain.DeliverRequest) (domain.VendorResponse, error) {
	return h.do(ctx, CallDeliver, req.Target, orderPayload{
		OrderID:          req.OrderID,
		RowNumbers:       req.RowNumbers,
		DistributionType: req.DistributionType,
	})
}

// Credit возвращает строки счёта или произвольные строки-суммы.
func (h *HTTPClient) Credit(ctx context.Context, req domain.CreditRequest) (domain.VendorResponse, error) {
	return h.do(ctx, CallCredit, req.Target, orderPayload{
		OrderID:          req.OrderID,
		InvoiceID:        req.InvoiceID,
		RowNumbers:       req.RowNumbers,
		Rows:             req.Rows,
		DistributionType: req.DistributionType,
	})
}

// Cancel отменяет заказ у провайдера.
func (h *HTTPClient) Cancel(ctx context.Context, ref domain.VendorRef) (domain.VendorResponse, error) {
	return h.do(ctx, CallCancel, ref.Target, orderPayload{OrderID: ref.OrderID})
}

// Recur выполняет рекуррентное списание по подписке.
func (h *HTTPClient) Recur(ctx context.Context, req domain.RecurRequest) (domain.VendorResponse, error) {
	return h.do(ctx, CallRecur, req.Target, recurPayload{
		Currency:          req.Currency,
		SubscriptionID:    req.SubscriptionID,
		ClientOrderNumber: req.ClientOrderNumber,
		AmountMinor:       req.AmountMinor,
		Rows:              req.Rows,
	})
}

// ParseHostedResponse проверяет подпись и разбирает ответ hosted-страницы.
func (h *HTTPClient) ParseHostedResponse(ctx context.Context, req domain.HostedResponseRequest) (domain.VendorResponse, error) {
	return h.do(ctx, CallHostedResponse, req.Target, hostedPayload{Response: req.Token})
}

func (h *HTTPClient) do(ctx context.Context, call string, target domain.Target, payload any) (domain.VendorResponse, error) {
	if strings.TrimSpace(target.Endpoint) == "" {
		return domain.VendorResponse{}, fmt.Errorf("gateway: no endpoint configured for %s %s", target.Family, call)
	}

	ctx, span := h.tracer.Start(ctx, "gateway."+call, trace.WithAttributes(
		attribute.String("vendor.family", string(target.Family)),
		attribute.String("vendor.country", target.Country),
	))
	defer span.End()

	var resp domain.VendorResponse
	err := h.breaker.Execute(string(target.Family), func() error {
		var callErr error
		resp, callErr = h.roundTrip(ctx, call, target, payload)
		return callErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.WithError(err).WithFields(log.Fields{
			"call":    call,
			"family":  target.Family,
			"country": target.Country,
		}).Warn("vendor call failed")
		return domain.VendorResponse{}, err
	}

	span.SetAttributes(
		attribute.Bool("vendor.accepted", resp.Accepted),
		attribute.Int("vendor.result_code", resp.ResultCode),
	)
	return resp, nil
}

func (h *HTTPClient) roundTrip(ctx context.Context, call string, target domain.Target, payload any) (domain.VendorResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := json.Marshal(wireRequest{
		Call:    call,
		Family:  target.Family,
		Country: strings.ToUpper(target.Country),
		Auth: wireAuth{
			MerchantID:   target.Credentials.MerchantID,
			Secret:       target.Credentials.Secret,
			Username:     target.Credentials.Username,
			Password:     target.Credentials.Password,
			ClientNumber: target.Credentials.ClientNumber,
		},
		Payload: payload,
	})
	if err != nil {
		return domain.VendorResponse{}, fmt.Errorf("gateway: encode %s request: %w", call, err)
	}

	url := strings.TrimRight(target.Endpoint, "/") + "/" + call
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.VendorResponse{}, fmt.Errorf("gateway: build %s request: %w", call, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	httpResp, err := h.client.Do(req)
	if err != nil {
		return domain.VendorResponse{}, fmt.Errorf("gateway: %s: %w", call, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return domain.VendorResponse{}, fmt.Errorf("gateway: read %s response: %w", call, err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return domain.VendorResponse{}, fmt.Errorf("gateway: %s returned http %d", call, httpResp.StatusCode)
	}

	if err := h.responses.Validate(raw); err != nil {
		return domain.VendorResponse{}, errors.Join(domain.ErrVendorResponseInvalid, fmt.Errorf("gateway: %s (http %d): %w", call, httpResp.StatusCode, err))
	}

	var resp domain.VendorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.VendorResponse{}, errors.Join(domain.ErrVendorResponseInvalid, err)
	}
	return resp, nil
}

var _ domain.VendorClient = (*HTTPClient)(nil)
