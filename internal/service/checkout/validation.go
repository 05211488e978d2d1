// Package checkout проверяет поля оформления заказа до запуска оплаты.
package checkout

import (
	"errors"
	"strings"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// ErrCountryUnsupported — страна плательщика не обслуживается способом оплаты.
var ErrCountryUnsupported = errors.New("country is not supported for this payment method")

// FieldError — замечание к одному полю формы.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors — набор замечаний к форме оформления.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "checkout validation failed: " + strings.Join(parts, "; ")
}

// Messages возвращает тексты замечаний для показа покупателю.
func (v ValidationErrors) Messages() []string {
	out := make([]string, 0, len(v))
	for _, fe := range v {
		out = append(out, fe.Message)
	}
	return out
}

// Fields — поля, которые покупатель заполняет на странице оформления.
type Fields struct {
	CustomerType    domain.CustomerType
	NationalID      string
	OrgNumber       string
	VATNumber       string
	Initials        string
	BirthDate       domain.BirthDate
	AddressSelector string
	Campaign        string
	BankMethod      string
}

var nordic = map[string]bool{"SE": true, "DK": true, "NO": true, "FI": true}

// Validate проверяет поля для способа оплаты и страны.
// Возвращает ErrCountryUnsupported или ValidationErrors.
func Validate(method domain.PaymentMethod, country string, f Fields) error {
	country = strings.ToUpper(strings.TrimSpace(country))

	var errs ValidationErrors
	switch method {
	case domain.PaymentMethodInvoice:
		if !nordic[country] && country != "NL" && country != "DE" {
			return ErrCountryUnsupported
		}
		errs = validateIdentity(country, f, true)
	case domain.PaymentMethodPartPay:
		if !nordic[country] && country != "NL" && country != "DE" {
			return ErrCountryUnsupported
		}
		if f.CustomerType == domain.CustomerCompany {
			errs = append(errs, FieldError{Field: "customer_type", Message: "Part payment is only available for private customers."})
			break
		}
		errs = validateIdentity(country, f, false)
		if strings.TrimSpace(f.Campaign) == "" {
			errs = append(errs, FieldError{Field: "campaign", Message: "Please select a payment plan."})
		}
	case domain.PaymentMethodDirectBank:
		if strings.TrimSpace(f.BankMethod) == "" {
			errs = append(errs, FieldError{Field: "bank_method", Message: "Please select a bank."})
		}
	case domain.PaymentMethodCard:
	default:
		return domain.ErrPaymentMethodUnsupported
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateIdentity(country string, f Fields, companies bool) ValidationErrors {
	var errs ValidationErrors
	required := func(value, field, message string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, FieldError{Field: field, Message: message})
		}
	}

	customerType := f.CustomerType
	if !companies {
		customerType = domain.CustomerIndividual
	}

	switch {
	case nordic[country]:
		switch customerType {
		case domain.CustomerCompany:
			required(f.OrgNumber, "org_number", "Organisation number is required.")
		case domain.CustomerIndividual:
			required(f.NationalID, "ssn", "Personal number is required.")
		default:
			errs = append(errs, FieldError{Field: "customer_type", Message: "Personal/organisation number is required."})
		}
	case country == "NL":
		switch customerType {
		case domain.CustomerCompany:
			required(f.VATNumber, "vat_number", "VAT number is required.")
		default:
			required(f.Initials, "initials", "Initials is a required field.")
			errs = append(errs, validateBirthDate(f.BirthDate)...)
		}
	case country == "DE":
		switch customerType {
		case domain.CustomerCompany:
			required(f.VATNumber, "vat_number", "VAT number is required.")
		default:
			errs = append(errs, validateBirthDate(f.BirthDate)...)
		}
	}
	return errs
}

func validateBirthDate(d domain.BirthDate) ValidationErrors {
	var errs ValidationErrors
	if d.Year <= 0 {
		errs = append(errs, FieldError{Field: "birth_date_year", Message: "Birth date year is a required field."})
	}
	if d.Month <= 0 || d.Month > 12 {
		errs = append(errs, FieldError{Field: "birth_date_month", Message: "Birth date month is a required field."})
	}
	if d.Day <= 0 || d.Day > 31 {
		errs = append(errs, FieldError{Field: "birth_date_day", Message: "Birth date day is a required field."})
	}
	return errs
}

// Apply переносит проверенные поля в покупателя и метаданные заказа.
func Apply(order *domain.Order, f Fields) error {
	if order.HasVendorOrder() {
		return domain.ErrOrderLocked
	}

	c := &order.Customer
	if f.CustomerType != "" {
		c.Type = f.CustomerType
	}
	c.NationalID = strings.TrimSpace(f.NationalID)
	c.OrgNumber = strings.TrimSpace(f.OrgNumber)
	c.VATNumber = strings.TrimSpace(f.VATNumber)
	c.Initials = strings.TrimSpace(f.Initials)
	c.BirthDate = f.BirthDate
	c.AddressSelector = strings.TrimSpace(f.AddressSelector)
	c.ZipCode = FormatZipCode(order.BillingCountry, c.ZipCode)

	order.Meta.PaymentPlanCampaign = strings.TrimSpace(f.Campaign)
	order.Meta.BankMethod = strings.TrimSpace(f.BankMethod)
	return nil
}
