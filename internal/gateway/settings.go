package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// DefaultDistributionType — способ доставки счёта, если для страны ничего не задано.
const DefaultDistributionType = "Post"

// InvoiceFee — сбор за счёт, добавляемый к заказу перед оплатой.
type InvoiceFee struct {
	Label            string  `json:"label"`
	AmountExVatMinor int64   `json:"amount_ex_vat_minor"`
	VatPercent       float64 `json:"vat_percent"`
}

// CountrySettings — настройки способа оплаты для страны плательщика.
type CountrySettings struct {
	Username         string      `json:"username"`
	Password         string      `json:"password"`
	ClientNumber     string      `json:"client_number"`
	Testmode         bool        `json:"testmode"`
	DistributionType string      `json:"distribution_type"`
	Campaigns        []string    `json:"campaigns"`
	InvoiceFee       *InvoiceFee `json:"invoice_fee"`
}

// MethodSettings — настройки одного способа оплаты.
type MethodSettings struct {
	Enabled           bool                       `json:"enabled"`
	Testmode          bool                       `json:"testmode"`
	MerchantID        string                     `json:"merchant_id"`
	SecretWord        string                     `json:"secret_word"`
	Language          string                     `json:"language"`
	CardPaymentMethod string                     `json:"card_payment_method"`
	StrongAuthSE      bool                       `json:"strong_auth_se"`
	DisableOrderSync  bool                       `json:"disable_order_sync"`
	Countries         map[string]CountrySettings `json:"countries"`

	endpoints endpointOverrides
}

type endpointOverrides struct {
	Test       map[EndpointType]string `json:"test"`
	Production map[EndpointType]string `json:"production"`
}

// Settings — документ настроек всех способов оплаты.
type Settings struct {
	Methods   map[domain.PaymentMethod]MethodSettings `json:"methods"`
	Endpoints endpointOverrides                       `json:"endpoints"`
}

// LoadSettings читает и проверяет файл настроек.
func LoadSettings(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("gateway: read settings %s: %w", path, err)
	}
	return ParseSettings(raw)
}

// ParseSettings проверяет документ по встроенной схеме и декодирует его.
func ParseSettings(raw []byte) (Settings, error) {
	schema, err := loadSchema("settings.json")
	if err != nil {
		return Settings{}, err
	}
	if err := schema.Validate(raw); err != nil {
		return Settings{}, fmt.Errorf("gateway: invalid settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("gateway: decode settings: %w", err)
	}
	for id, method := range settings.Methods {
		method.endpoints = settings.Endpoints
		settings.Methods[id] = method
	}
	return settings, nil
}

// Method возвращает настройки включённого способа оплаты.
func (s Settings) Method(id domain.PaymentMethod) (MethodSettings, bool) {
	method, ok := s.Methods[id]
	if !ok || !method.Enabled {
		return MethodSettings{}, false
	}
	return method, true
}

// Country возвращает настройки страны (регистр кода не важен).
func (m MethodSettings) Country(country string) (CountrySettings, bool) {
	cs, ok := m.Countries[strings.ToUpper(country)]
	return cs, ok
}

// UsesStrongAuth — строгая аутентификация применяется только в Швеции и только при включённом флаге.
func (m MethodSettings) UsesStrongAuth(country string) bool {
	return strings.EqualFold(country, "SE") && m.StrongAuthSE
}

// DistributionType возвращает способ доставки счёта для страны.
func (m MethodSettings) DistributionType(country string) string {
	if cs, ok := m.Country(country); ok && cs.DistributionType != "" {
		return cs.DistributionType
	}
	return DefaultDistributionType
}

// MerchantConfig — конфигурация с merchant id и секретом (карта, прямой банковский платёж).
func (m MethodSettings) MerchantConfig() Config {
	cfg := NewConfig(m.Testmode, domain.Credentials{MerchantID: m.MerchantID, Secret: m.SecretWord})
	return m.withEndpoints(cfg)
}

// CountryConfig — конфигурация с учётными данными страны (счёт, рассрочка).
func (m MethodSettings) CountryConfig(country string) (Config, error) {
	cs, ok := m.Country(country)
	if !ok {
		return nil, fmt.Errorf("gateway: country %s is not configured", strings.ToUpper(country))
	}
	cfg := NewConfig(cs.Testmode, domain.Credentials{
		MerchantID:   m.MerchantID,
		Secret:       m.SecretWord,
		Username:     cs.Username,
		Password:     cs.Password,
		ClientNumber: cs.ClientNumber,
	})
	return m.withEndpoints(cfg), nil
}

// WithEndpoints задаёт переопределения адресов сервисов (используется в тестах и локальной разработке).
func (m MethodSettings) WithEndpoints(test, production map[EndpointType]string) MethodSettings {
	m.endpoints = endpointOverrides{Test: test, Production: production}
	return m
}

func (m MethodSettings) withEndpoints(cfg Config) Config {
	if cfg.IsTest() {
		return Override(cfg, m.endpoints.Test)
	}
	return Override(cfg, m.endpoints.Production)
}
