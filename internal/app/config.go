package app

import (
	"fmt"
	"strings"
	"time"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Режимы трассировки.
const (
	TracingOff    = "off"
	TracingStdout = "stdout"
)

const envPrefix = "SVEAPAY_"

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers        []string
	KafkaClientID       string
	KafkaOutboxTopic    string
	KafkaLifecycleTopic string
	KafkaDLQTopic       string
	KafkaGroupID        string

	// GatewaysFile — JSON с настройками способов оплаты; пустой путь — все способы выключены.
	GatewaysFile  string
	PublicBaseURL string
	DefaultLocale string

	AuthPollDelay      time.Duration
	NonceTTL           time.Duration
	NonceSweepInterval time.Duration
	OutboxInterval     time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	Tracing string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		KafkaClientID:       "sveapay",
		KafkaOutboxTopic:    "sveapay.reconcile.events",
		KafkaLifecycleTopic: "sveapay.platform.order-status",
		KafkaDLQTopic:       "sveapay.dlq",
		KafkaGroupID:        "sveapay-lifecycle",
		PublicBaseURL:       "http://localhost:8080",
		DefaultLocale:       "en",
		AuthPollDelay:       10 * time.Minute,
		NonceTTL:            12 * time.Hour,
		NonceSweepInterval:  time.Hour,
		OutboxInterval:      time.Second,
		OutboxBatchSize:     50,
		OutboxMaxAttempts:   3,
		Tracing:             TracingOff,
	}
}

// LoadConfig накладывает переменные окружения SVEAPAY_* на DefaultConfig.
func LoadConfig(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	env := func(name string) string {
		return strings.TrimSpace(getenv(envPrefix + name))
	}

	setString(&cfg.HTTPAddr, env("HTTP_ADDR"))
	setString(&cfg.GRPCAddr, env("GRPC_ADDR"))
	setString(&cfg.MetricsAddr, env("METRICS_ADDR"))
	setString(&cfg.StorageDriver, strings.ToLower(env("STORAGE_DRIVER")))
	setString(&cfg.PostgresDSN, env("POSTGRES_DSN"))
	setString(&cfg.KafkaClientID, env("KAFKA_CLIENT_ID"))
	setString(&cfg.KafkaOutboxTopic, env("KAFKA_OUTBOX_TOPIC"))
	setString(&cfg.KafkaLifecycleTopic, env("KAFKA_LIFECYCLE_TOPIC"))
	setString(&cfg.KafkaDLQTopic, env("KAFKA_DLQ_TOPIC"))
	setString(&cfg.KafkaGroupID, env("KAFKA_GROUP_ID"))
	setString(&cfg.GatewaysFile, env("GATEWAYS_FILE"))
	setString(&cfg.PublicBaseURL, env("PUBLIC_BASE_URL"))
	setString(&cfg.DefaultLocale, env("DEFAULT_LOCALE"))
	setString(&cfg.Tracing, strings.ToLower(env("TRACING")))

	if v := env("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitBrokers(v)
	}
	if v := env("POSTGRES_AUTO_MIGRATE"); v != "" {
		cfg.PostgresAutoMigrate = v == "1" || strings.EqualFold(v, "true")
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"AUTH_POLL_DELAY", &cfg.AuthPollDelay},
		{"NONCE_TTL", &cfg.NonceTTL},
		{"NONCE_SWEEP_INTERVAL", &cfg.NonceSweepInterval},
		{"OUTBOX_INTERVAL", &cfg.OutboxInterval},
	}
	for _, d := range durations {
		v := env(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("config: %s%s must be a positive duration, got %q", envPrefix, d.name, v)
		}
		*d.dst = parsed
	}

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: %sPOSTGRES_DSN is required for postgres storage", envPrefix)
		}
	default:
		return fmt.Errorf("config: unsupported storage driver %q", c.StorageDriver)
	}
	switch c.Tracing {
	case TracingOff, TracingStdout:
	default:
		return fmt.Errorf("config: unsupported tracing mode %q", c.Tracing)
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("config: %sPUBLIC_BASE_URL is required", envPrefix)
	}
	return nil
}

// KafkaEnabled сообщает, настроены ли брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
