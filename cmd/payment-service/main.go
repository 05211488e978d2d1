package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/app"
	"github.com/vladislavdragonenkov/sveapay/internal/version"
)

// setupLogger настраивает формат и уровень логирования по SVEAPAY_LOG_FORMAT и SVEAPAY_LOG_LEVEL.
func setupLogger(getenv func(string) string) error {
	switch strings.ToLower(strings.TrimSpace(getenv("SVEAPAY_LOG_FORMAT"))) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.New("SVEAPAY_LOG_FORMAT must be text or json")
	}

	level := log.InfoLevel
	if raw := strings.TrimSpace(getenv("SVEAPAY_LOG_LEVEL")); raw != "" {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			return err
		}
		level = parsed
	}
	log.SetLevel(level)
	return nil
}

func main() {
	if err := setupLogger(os.Getenv); err != nil {
		log.WithError(err).Fatal("некорректные настройки логирования")
	}

	cfg, err := app.LoadConfig(os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        cfg.KafkaEnabled(),
		"build":        version.Current().String(),
	}).Info("запускаем payment-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("payment-service остановлен")
}
