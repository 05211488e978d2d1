// Package gateway содержит клиент шлюза провайдера Svea WebPay и его конфигурацию.
package gateway

import (
	"fmt"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// EndpointType — тип сервиса провайдера.
type EndpointType string

const (
	EndpointHosted      EndpointType = "hosted"
	EndpointInvoice     EndpointType = "invoice"
	EndpointPaymentPlan EndpointType = "payment_plan"
	EndpointAdmin       EndpointType = "admin"
	EndpointHostedAdmin EndpointType = "hosted_admin"
	EndpointPrepared    EndpointType = "prepared"
)

var productionEndpoints = map[EndpointType]string{
	EndpointHosted:      "https://webpaypaymentgateway.svea.com/webpay/payment",
	EndpointInvoice:     "https://webpayws.svea.com/SveaWebPay.asmx",
	EndpointPaymentPlan: "https://webpayws.svea.com/SveaWebPay.asmx",
	EndpointAdmin:       "https://webpayadminservice.svea.com/AdminService.svc/backward",
	EndpointHostedAdmin: "https://webpaypaymentgateway.svea.com/webpay/rest",
	EndpointPrepared:    "https://webpaypaymentgateway.svea.com/webpay/preparedpayment",
}

var testEndpoints = map[EndpointType]string{
	EndpointHosted:      "https://webpaypaymentgatewaystage.svea.com/webpay/payment",
	EndpointInvoice:     "https://webpaywsstage.svea.com/SveaWebPay.asmx",
	EndpointPaymentPlan: "https://webpaywsstage.svea.com/SveaWebPay.asmx",
	EndpointAdmin:       "https://webpayadminservicestage.svea.com/AdminService.svc/backward",
	EndpointHostedAdmin: "https://webpaypaymentgatewaystage.svea.com/webpay/rest",
	EndpointPrepared:    "https://webpaypaymentgatewaystage.svea.com/webpay/preparedpayment",
}

// Config — конфигурация доступа к провайдеру: тестовая или боевая.
// Реализации ограничены TestConfig и ProductionConfig.
type Config interface {
	Endpoint(t EndpointType) (string, error)
	Credentials() domain.Credentials
	IsTest() bool
	sealed()
}

// TestConfig направляет вызовы в stage-окружение провайдера.
type TestConfig struct {
	creds     domain.Credentials
	overrides map[EndpointType]string
}

// ProductionConfig направляет вызовы в боевое окружение провайдера.
type ProductionConfig struct {
	creds     domain.Credentials
	overrides map[EndpointType]string
}

// NewConfig выбирает вариант конфигурации по флагу тестового режима.
func NewConfig(testmode bool, creds domain.Credentials) Config {
	if testmode {
		return TestConfig{creds: creds}
	}
	return ProductionConfig{creds: creds}
}

// Override возвращает копию конфигурации с заменёнными адресами сервисов.
// Пустые значения игнорируются.
func Override(cfg Config, endpoints map[EndpointType]string) Config {
	if len(endpoints) == 0 {
		return cfg
	}
	switch c := cfg.(type) {
	case TestConfig:
		c.overrides = mergeEndpoints(c.overrides, endpoints)
		return c
	case ProductionConfig:
		c.overrides = mergeEndpoints(c.overrides, endpoints)
		return c
	default:
		return cfg
	}
}

func (c TestConfig) Endpoint(t EndpointType) (string, error) {
	return resolveEndpoint(t, c.overrides, testEndpoints)
}

func (c TestConfig) Credentials() domain.Credentials { return c.creds }

func (TestConfig) IsTest() bool { return true }

func (TestConfig) sealed() {}

func (c ProductionConfig) Endpoint(t EndpointType) (string, error) {
	return resolveEndpoint(t, c.overrides, productionEndpoints)
}

func (c ProductionConfig) Credentials() domain.Credentials { return c.creds }

func (ProductionConfig) IsTest() bool { return false }

func (ProductionConfig) sealed() {}

// EndpointTypeFor выбирает сервис для семейства операций; admin используется для запросов к существующему заказу.
func EndpointTypeFor(family domain.OrderFamily, admin bool) EndpointType {
	switch family {
	case domain.FamilyCard, domain.FamilyDirectBank:
		if admin {
			return EndpointHostedAdmin
		}
		return EndpointHosted
	case domain.FamilyPaymentPlan:
		if admin {
			return EndpointAdmin
		}
		return EndpointPaymentPlan
	default:
		if admin {
			return EndpointAdmin
		}
		return EndpointInvoice
	}
}

// Target собирает адрес вызова для семейства и страны из конфигурации.
func Target(cfg Config, family domain.OrderFamily, country string, admin bool) (domain.Target, error) {
	endpoint, err := cfg.Endpoint(EndpointTypeFor(family, admin))
	if err != nil {
		return domain.Target{}, err
	}
	return domain.Target{
		Family:      family,
		Country:     country,
		Endpoint:    endpoint,
		Credentials: cfg.Credentials(),
	}, nil
}

func resolveEndpoint(t EndpointType, overrides, defaults map[EndpointType]string) (string, error) {
	if url, ok := overrides[t]; ok && url != "" {
		return url, nil
	}
	if url, ok := defaults[t]; ok {
		return url, nil
	}
	return "", fmt.Errorf("gateway: unknown endpoint type %q", t)
}

func mergeEndpoints(dst, src map[EndpointType]string) map[EndpointType]string {
	merged := make(map[EndpointType]string, len(dst)+len(src))
	for k, v := range dst {
		merged[k] = v
	}
	for k, v := range src {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}
