package checkout

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/gateway"
)

const (
	customerReferenceMax  = 32
	customerReferenceKeep = 29
)

// InvoiceFeeItemID — идентификатор позиции сбора за счёт.
const InvoiceFeeItemID = "invoice-fee"

// CustomerReference — имя получателя для компании, если доставка идёт другому лицу.
// Длиннее 32 символов обрезается до 29 с многоточием.
func CustomerReference(c domain.Customer) string {
	if c.Type != domain.CustomerCompany {
		return ""
	}
	first := strings.TrimSpace(c.ShippingFirstName)
	last := strings.TrimSpace(c.ShippingLastName)
	if first == "" || last == "" {
		return ""
	}
	if strings.EqualFold(first, strings.TrimSpace(c.FirstName)) && strings.EqualFold(last, strings.TrimSpace(c.LastName)) {
		return ""
	}

	ref := first + " " + last
	if utf8.RuneCountInString(ref) > customerReferenceMax {
		runes := []rune(ref)
		ref = string(runes[:customerReferenceKeep]) + "..."
	}
	return ref
}

// FormatZipCode приводит нидерландский индекс к виду "1234 AB"; для других стран возвращает как есть.
func FormatZipCode(country, zip string) string {
	if !strings.EqualFold(country, "NL") {
		return zip
	}

	var b strings.Builder
	var last rune
	for i, r := range zip {
		if i > 0 && unicode.IsDigit(last) && !unicode.IsDigit(r) && r != ' ' {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		last = r
	}
	return b.String()
}

// AppendInvoiceFee добавляет позицию сбора за счёт один раз. Возвращает true, если позиция добавлена.
func AppendInvoiceFee(order *domain.Order, fee *gateway.InvoiceFee) (bool, error) {
	if fee == nil || strings.TrimSpace(fee.Label) == "" || fee.AmountExVatMinor <= 0 {
		return false, nil
	}
	if order.HasVendorOrder() {
		return false, domain.ErrOrderLocked
	}
	for _, item := range order.Items {
		if item.Type == domain.LineItemFee && (item.ID == InvoiceFeeItemID || item.Name == fee.Label) {
			return false, nil
		}
	}

	item := domain.LineItem{
		ID:                  InvoiceFeeItemID,
		Type:                domain.LineItemFee,
		Name:                fee.Label,
		ArticleNumber:       slug(fee.Label),
		Quantity:            1,
		UnitPriceExVatMinor: fee.AmountExVatMinor,
		VatPercent:          fee.VatPercent,
	}
	order.Items = append(order.Items, item)
	order.TotalMinor += item.TotalIncVatMinor()
	order.TaxMinor += item.TotalIncVatMinor() - item.TotalExVatMinor()
	return true, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
