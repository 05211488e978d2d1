package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer, если брокеры заданы.
// Возвращает nil, nil, если Kafka не настроена.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers выбирает, куда relay отправляет события и куда уходят исчерпавшие попытки.
func outboxPublishers(cfg Config, producer *kafka.Producer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return logPublisher{logger: logger.WithField("publisher", "log")}, nil
	}
	var deadLetter domain.OutboxPublisher
	if cfg.KafkaDLQTopic != "" {
		deadLetter = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaOutboxTopic), deadLetter
}

// initLifecycleConsumer подписывается на смены статуса заказа с платформы.
func initLifecycleConsumer(cfg Config, syncer kafka.StatusSyncer, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if !cfg.KafkaEnabled() || cfg.KafkaLifecycleTopic == "" {
		return nil, nil
	}

	consumerLogger := logger.WithField("component", "lifecycle-consumer")
	options := []kafka.ConsumerOption{kafka.WithConsumerLogger(consumerLogger)}
	if producer != nil && cfg.KafkaDLQTopic != "" {
		options = append(options, kafka.WithDeadLetter(producer, cfg.KafkaDLQTopic))
	}

	return kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.KafkaGroupID,
		[]string{cfg.KafkaLifecycleTopic},
		kafka.StatusSyncHandler(syncer, consumerLogger),
		options...,
	)
}

// closeKafka закрывает Kafka producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher пишет события outbox в лог, когда брокер не настроен.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Info("outbox event")
	return nil
}
