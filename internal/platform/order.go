// Package platform переводит записи заказов магазина в доменную модель.
package platform

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// ErrRecordInvalid — запись платформы не удалось перевести в заказ.
var ErrRecordInvalid = errors.New("platform order record is invalid")

// Address — блок адреса плательщика или получателя.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Line — строка заказа платформы: товар, сбор или доставка. Суммы без НДС, строкой в основных единицах.
type Line struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Quantity int32  `json:"quantity"`
	Total    string `json:"total"`
	TotalTax string `json:"total_tax"`
}

// Order — запись заказа, которую присылает платформа.
type Order struct {
	ID              string   `json:"id"`
	Number          string   `json:"number"`
	Key             string   `json:"order_key"`
	Status          string   `json:"status"`
	PaymentMethod   string   `json:"payment_method"`
	Currency        string   `json:"currency"`
	Total           string   `json:"total"`
	TotalTax        string   `json:"total_tax"`
	CustomerIP      string   `json:"customer_ip_address"`
	Billing         Address  `json:"billing"`
	Shipping        Address  `json:"shipping"`
	LineItems       []Line   `json:"line_items"`
	FeeLines        []Line   `json:"fee_lines"`
	ShippingLines   []Line   `json:"shipping_lines"`
	SubscriptionIDs []string `json:"subscription_ids"`
}

var statusAliases = map[string]domain.OrderStatus{
	"pending":    domain.OrderStatusPending,
	"on-hold":    domain.OrderStatusPending,
	"processing": domain.OrderStatusPaid,
	"paid":       domain.OrderStatusPaid,
	"completed":  domain.OrderStatusCompleted,
	"cancelled":  domain.OrderStatusCancelled,
	"refunded":   domain.OrderStatusRefunded,
	"failed":     domain.OrderStatusFailed,
}

// ParseStatus переводит статус платформы (с префиксом "wc-" или без) в статус заказа.
func ParseStatus(raw string) (domain.OrderStatus, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "wc-")
	status, ok := statusAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrStatusInvalid, raw)
	}
	return status, nil
}

// Translate строит доменный заказ из записи платформы.
func Translate(rec Order, now time.Time) (domain.Order, error) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrRecordInvalid, domain.ErrOrderIDRequired)
	}

	status := domain.OrderStatusPending
	if rec.Status != "" {
		s, err := ParseStatus(rec.Status)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %w", ErrRecordInvalid, err)
		}
		status = s
	}

	total, err := ParseMinor(rec.Total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: total: %v", ErrRecordInvalid, err)
	}
	tax, err := ParseMinor(rec.TotalTax)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: total_tax: %v", ErrRecordInvalid, err)
	}

	items := make([]domain.LineItem, 0, len(rec.LineItems)+len(rec.FeeLines)+len(rec.ShippingLines))
	groups := []struct {
		kind  domain.LineItemType
		lines []Line
	}{
		{domain.LineItemProduct, rec.LineItems},
		{domain.LineItemFee, rec.FeeLines},
		{domain.LineItemShipping, rec.ShippingLines},
	}
	for _, g := range groups {
		for idx, line := range g.lines {
			item, err := translateLine(g.kind, line)
			if err != nil {
				return domain.Order{}, fmt.Errorf("%w: %s[%d]: %v", ErrRecordInvalid, g.kind, idx, err)
			}
			items = append(items, item)
		}
	}

	billing := rec.Billing
	order := domain.Order{
		ID:             id,
		Number:         strings.TrimSpace(rec.Number),
		Key:            rec.Key,
		Status:         status,
		PaymentMethod:  domain.PaymentMethod(rec.PaymentMethod),
		BillingCountry: strings.ToUpper(strings.TrimSpace(billing.Country)),
		Currency:       strings.ToUpper(strings.TrimSpace(rec.Currency)),
		TotalMinor:     total,
		TaxMinor:       tax,
		Customer: domain.Customer{
			Type:              domain.CustomerIndividual,
			FirstName:         billing.FirstName,
			LastName:          billing.LastName,
			Company:           billing.Company,
			Email:             billing.Email,
			Phone:             billing.Phone,
			Address1:          billing.Address1,
			Address2:          billing.Address2,
			ZipCode:           billing.Postcode,
			City:              billing.City,
			Country:           strings.ToUpper(strings.TrimSpace(billing.Country)),
			ShippingFirstName: rec.Shipping.FirstName,
			ShippingLastName:  rec.Shipping.LastName,
			IPAddress:         rec.CustomerIP,
		},
		Items:           items,
		SubscriptionIDs: append([]string(nil), rec.SubscriptionIDs...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if strings.TrimSpace(billing.Company) != "" {
		order.Customer.Type = domain.CustomerCompany
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrRecordInvalid, errors.Join(errs...))
	}
	return order, nil
}

func translateLine(kind domain.LineItemType, line Line) (domain.LineItem, error) {
	id := strings.TrimSpace(line.ID)
	if id == "" {
		return domain.LineItem{}, errors.New("id is required")
	}
	qty := line.Quantity
	if qty == 0 && kind != domain.LineItemProduct {
		qty = 1
	}
	if qty <= 0 {
		return domain.LineItem{}, domain.ErrItemQtyInvalid
	}

	total, err := ParseMinor(line.Total)
	if err != nil {
		return domain.LineItem{}, err
	}
	tax, err := ParseMinor(line.TotalTax)
	if err != nil {
		return domain.LineItem{}, err
	}

	article := strings.TrimSpace(line.SKU)
	if article == "" && kind == domain.LineItemShipping {
		article = "shipping"
	}

	return domain.LineItem{
		ID:                  id,
		Type:                kind,
		Name:                line.Name,
		ArticleNumber:       article,
		Quantity:            qty,
		UnitPriceExVatMinor: int64(math.Round(float64(total) / float64(qty))),
		VatPercent:          vatPercent(total, tax),
	}, nil
}

// vatPercent восстанавливает ставку НДС строки по сумме и налогу, с точностью до сотых.
func vatPercent(total, tax int64) float64 {
	if total == 0 || tax == 0 {
		return 0
	}
	return math.Round(float64(tax)/float64(total)*10000) / 100
}

// Merge применяет свежую запись платформы к сохранённому заказу.
// Статус, метаданные провайдера, маркеры строк и версия остаются за сервисом.
// Если у заказа уже есть заказ у провайдера, состав строк менять нельзя.
func Merge(stored domain.Order, fresh domain.Order) (domain.Order, error) {
	merged := stored.Clone()

	if stored.HasVendorOrder() {
		if !sameLines(stored.Items, fresh.Items) || stored.TotalMinor != fresh.TotalMinor {
			return domain.Order{}, domain.ErrOrderLocked
		}
	} else {
		prev := make(map[string]domain.LineItem, len(merged.Items))
		for _, item := range merged.Items {
			prev[item.ID] = item
		}
		merged.Items = make([]domain.LineItem, len(fresh.Items))
		for i, item := range fresh.Items {
			if p, ok := prev[item.ID]; ok {
				item.DeliveredAt = p.DeliveredAt
				item.CreditedAt = p.CreditedAt
				item.VendorRowNumber = p.VendorRowNumber
				item.VendorInvoiceID = p.VendorInvoiceID
			}
			merged.Items[i] = item
		}
		merged.TotalMinor = fresh.TotalMinor
		merged.TaxMinor = fresh.TaxMinor
		merged.Currency = fresh.Currency
		merged.BillingCountry = fresh.BillingCountry
		merged.PaymentMethod = fresh.PaymentMethod
	}

	// Поля идентификации покупателя заполняются на оформлении, платформа их не присылает.
	identity := merged.Customer.Identity()
	merged.Customer = fresh.Customer.WithIdentity(identity)
	if fresh.Customer.Type == domain.CustomerCompany {
		merged.Customer.Type = domain.CustomerCompany
	}
	merged.Number = fresh.Number
	merged.Key = fresh.Key
	merged.SubscriptionIDs = append([]string(nil), fresh.SubscriptionIDs...)
	merged.UpdatedAt = fresh.UpdatedAt
	return merged, nil
}

func sameLines(a, b []domain.LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Quantity != b[i].Quantity || a[i].UnitPriceExVatMinor != b[i].UnitPriceExVatMinor {
			return false
		}
	}
	return true
}
