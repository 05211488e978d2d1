package domain

import "context"

// OrderFamily — семейство операций провайдера.
type OrderFamily string

const (
	FamilyCard        OrderFamily = "card"
	FamilyInvoice     OrderFamily = "invoice"
	FamilyPaymentPlan OrderFamily = "payment_plan"
	FamilyDirectBank  OrderFamily = "direct_bank"
)

// Credentials — набор учётных данных способа оплаты для конкретной страны.
type Credentials struct {
	MerchantID   string
	Secret       string
	Username     string
	Password     string
	ClientNumber string
}

// VendorRow — строка заказа в терминах провайдера.
type VendorRow struct {
	RowNumber           int     `json:"row_number,omitempty"`
	ArticleNumber       string  `json:"article_number,omitempty"`
	Name                string  `json:"name,omitempty"`
	Quantity            int32   `json:"quantity"`
	UnitPriceExVatMinor int64   `json:"unit_price_ex_vat_minor"`
	VatPercent          float64 `json:"vat_percent"`
	InvoiceID           string  `json:"invoice_id,omitempty"`
	Status              string  `json:"status,omitempty"`
}

// VendorResponse — результат вызова провайдера. Успех тогда и только тогда, когда Accepted.
type VendorResponse struct {
	Accepted       bool        `json:"accepted"`
	TransactionID  string      `json:"transaction_id,omitempty"`
	OrderID        string      `json:"order_id,omitempty"`
	ResultCode     int         `json:"result_code,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	OrderStatus    string      `json:"order_status,omitempty"`
	PendingReasons string      `json:"pending_reasons,omitempty"`
	RedirectURL    string      `json:"redirect_url,omitempty"`
	InvoiceID      string      `json:"invoice_id,omitempty"`
	SubscriptionID string      `json:"subscription_id,omitempty"`
	PaymentMethod  string      `json:"payment_method,omitempty"`
	Rows           []VendorRow `json:"rows,omitempty"`
}

// Target — куда и с какими учётными данными отправляется вызов провайдера.
type Target struct {
	Family      OrderFamily
	Country     string
	Endpoint    string
	Credentials Credentials
}

// VendorRef адресует существующий заказ у провайдера.
type VendorRef struct {
	Target
	OrderID string
}

// CreateRequest — данные для создания заказа у провайдера.
type CreateRequest struct {
	Target
	Currency          string
	ClientOrderNumber string
	CustomerReference string
	Customer          Customer
	Rows              []VendorRow
	// ReturnURL и CallbackURL используются hosted-оплатой, Confirmation/Rejection: строгой аутентификацией.
	ReturnURL        string
	CallbackURL      string
	CancelURL        string
	ConfirmationURL  string
	RejectionURL     string
	CampaignCode     string
	BankMethod       string
	SubscriptionType string
	Language         string
}

// DeliverRequest — доставка заказа целиком (RowNumbers пуст) или выбранных строк.
type DeliverRequest struct {
	VendorRef
	RowNumbers       []int
	DistributionType string
}

// CreditRequest — возврат строк счёта (InvoiceID + RowNumbers) или произвольных строк-сумм (Rows).
type CreditRequest struct {
	VendorRef
	InvoiceID        string
	RowNumbers       []int
	Rows             []VendorRow
	DistributionType string
}

// RecurRequest — рекуррентное списание по подписке провайдера.
type RecurRequest struct {
	Target
	Currency          string
	SubscriptionID    string
	ClientOrderNumber string
	AmountMinor       int64
	Rows              []VendorRow
}

// HostedResponseRequest — подписанный ответ hosted-страницы из callback.
type HostedResponseRequest struct {
	Target
	Token string
}

// VendorClient — контракт шлюза провайдера. Ошибка означает сбой транспорта,
// отказ провайдера выражается VendorResponse с Accepted=false.
type VendorClient interface {
	Create(ctx context.Context, req CreateRequest) (VendorResponse, error)
	Query(ctx context.Context, ref VendorRef) (VendorResponse, error)
	Deliver(ctx context.Context, req DeliverRequest) (VendorResponse, error)
	Credit(ctx context.Context, req CreditRequest) (VendorResponse, error)
	Cancel(ctx context.Context, ref VendorRef) (VendorResponse, error)
	Recur(ctx context.Context, req RecurRequest) (VendorResponse, error)
	ParseHostedResponse(ctx context.Context, req HostedResponseRequest) (VendorResponse, error)
}
