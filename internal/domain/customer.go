package domain

import "fmt"

// CustomerType — физическое лицо или компания.
type CustomerType string

const (
	CustomerIndividual CustomerType = "individual"
	CustomerCompany    CustomerType = "company"
)

// BirthDate хранит дату рождения по частям, как её вводит покупатель.
type BirthDate struct {
	Year  int
	Month int
	Day   int
}

// IsZero сообщает, что дата не заполнена ни в одной части.
func (d BirthDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Complete сообщает, что заполнены все три части.
func (d BirthDate) Complete() bool {
	return d.Year > 0 && d.Month > 0 && d.Day > 0
}

// String форматирует дату как YYYYMMDD.
func (d BirthDate) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

// Customer — данные плательщика, необходимые провайдеру.
type Customer struct {
	Type      CustomerType
	FirstName string
	LastName  string
	Company   string
	Email     string
	Phone     string
	Address1  string
	Address2  string
	ZipCode   string
	City      string
	Country   string

	ShippingFirstName string
	ShippingLastName  string

	NationalID      string
	OrgNumber       string
	VATNumber       string
	Initials        string
	BirthDate       BirthDate
	AddressSelector string
	IPAddress       string
}

// Identity — идентификационные поля покупателя, которые зеркалируются в подписки.
type Identity struct {
	CustomerType    CustomerType
	NationalID      string
	OrgNumber       string
	VATNumber       string
	Initials        string
	BirthDate       BirthDate
	AddressSelector string
}

// Identity выделяет идентификационные поля покупателя.
func (c Customer) Identity() Identity {
	return Identity{
		CustomerType:    c.Type,
		NationalID:      c.NationalID,
		OrgNumber:       c.OrgNumber,
		VATNumber:       c.VATNumber,
		Initials:        c.Initials,
		BirthDate:       c.BirthDate,
		AddressSelector: c.AddressSelector,
	}
}

// WithIdentity возвращает копию покупателя с полями из сохранённой идентичности.
func (c Customer) WithIdentity(id Identity) Customer {
	c.Type = id.CustomerType
	c.NationalID = id.NationalID
	c.OrgNumber = id.OrgNumber
	c.VATNumber = id.VATNumber
	c.Initials = id.Initials
	c.BirthDate = id.BirthDate
	c.AddressSelector = id.AddressSelector
	return c
}

// Subscription — подписка платформы, привязанная к родительскому заказу.
type Subscription struct {
	ID                   string
	ParentOrderID        string
	PaymentMethod        PaymentMethod
	Identity             Identity
	VendorSubscriptionID string
}
