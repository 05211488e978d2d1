package checkout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

func TestValidateInvoice(t *testing.T) {
	tests := []struct {
		name       string
		country    string
		fields     Fields
		wantFields []string
	}{
		{name: "nordic company needs org number", country: "SE", fields: Fields{CustomerType: domain.CustomerCompany}, wantFields: []string{"org_number"}},
		{name: "nordic individual needs ssn", country: "no", fields: Fields{CustomerType: domain.CustomerIndividual}, wantFields: []string{"ssn"}},
		{name: "nordic without type", country: "FI", fields: Fields{}, wantFields: []string{"customer_type"}},
		{name: "nordic individual ok", country: "DK", fields: Fields{CustomerType: domain.CustomerIndividual, NationalID: "2603692503"}},
		{name: "nl company needs vat", country: "NL", fields: Fields{CustomerType: domain.CustomerCompany}, wantFields: []string{"vat_number"}},
		{name: "nl individual needs initials and birth date", country: "NL", fields: Fields{CustomerType: domain.CustomerIndividual}, wantFields: []string{"initials", "birth_date_year", "birth_date_month", "birth_date_day"}},
		{name: "de individual needs birth date", country: "DE", fields: Fields{CustomerType: domain.CustomerIndividual, BirthDate: domain.BirthDate{Year: 1980, Month: 13, Day: 1}}, wantFields: []string{"birth_date_month"}},
		{name: "de company ok", country: "DE", fields: Fields{CustomerType: domain.CustomerCompany, VATNumber: "DE123456789"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(domain.PaymentMethodInvoice, tt.country, tt.fields)
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
			got := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				got = append(got, fe.Field)
			}
			require.Equal(t, tt.wantFields, got)
			require.Len(t, verrs.Messages(), len(tt.wantFields))
		})
	}
}

func TestValidateCountryAndMethod(t *testing.T) {
	require.ErrorIs(t, Validate(domain.PaymentMethodInvoice, "US", Fields{}), ErrCountryUnsupported)
	require.ErrorIs(t, Validate("paypal", "SE", Fields{}), domain.ErrPaymentMethodUnsupported)
	require.NoError(t, Validate(domain.PaymentMethodCard, "US", Fields{}))
}

func TestValidatePartPay(t *testing.T) {
	err := Validate(domain.PaymentMethodPartPay, "SE", Fields{CustomerType: domain.CustomerIndividual, NationalID: "194605092222"})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Equal(t, "campaign", verrs[0].Field)

	err = Validate(domain.PaymentMethodPartPay, "SE", Fields{CustomerType: domain.CustomerCompany, OrgNumber: "4608142222", Campaign: "213060"})
	require.ErrorAs(t, err, &verrs)
	require.Equal(t, "customer_type", verrs[0].Field)

	require.NoError(t, Validate(domain.PaymentMethodPartPay, "SE", Fields{NationalID: "194605092222", Campaign: "213060"}))
}

func TestValidateDirectBank(t *testing.T) {
	var verrs ValidationErrors
	require.ErrorAs(t, Validate(domain.PaymentMethodDirectBank, "SE", Fields{}), &verrs)
	require.NoError(t, Validate(domain.PaymentMethodDirectBank, "SE", Fields{BankMethod: "DBSWEDBANKSE"}))
}

func TestApply(t *testing.T) {
	order := domain.Order{BillingCountry: "NL", Customer: domain.Customer{ZipCode: "1234AB"}}
	err := Apply(&order, Fields{
		CustomerType: domain.CustomerIndividual,
		Initials:     " JD ",
		BirthDate:    domain.BirthDate{Year: 1970, Month: 1, Day: 2},
		Campaign:     "310012",
	})
	require.NoError(t, err)
	require.Equal(t, "JD", order.Customer.Initials)
	require.Equal(t, "1234 AB", order.Customer.ZipCode)
	require.Equal(t, "310012", order.Meta.PaymentPlanCampaign)

	order.Meta.VendorOrderID = "99"
	require.ErrorIs(t, Apply(&order, Fields{}), domain.ErrOrderLocked)
}
