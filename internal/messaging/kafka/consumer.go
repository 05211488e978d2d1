package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неустранимую повтором: сообщение сразу уходит в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter задаёт producer и топик для сообщений, исчерпавших попытки.
func WithDeadLetter(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetter = producer
		if topic != "" {
			c.deadLetterTopic = topic
		}
	}
}

// WithRetry задаёт число попыток обработки и паузу между ними.
func WithRetry(maxAttempts int, delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer читает топики в consumer group с повторами и DLQ.
type Consumer struct {
	group           sarama.ConsumerGroup
	topics          []string
	handler         MessageHandler
	logger          *log.Entry
	deadLetter      *Producer
	deadLetterTopic string
	maxAttempts     int
	retryDelay      time.Duration
	now             func() time.Time
	wg              sync.WaitGroup
}

// NewConsumer подключается к брокерам и создаёт consumer group.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, options ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return newConsumer(group, topics, handler, options...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:           group,
		topics:          topics,
		handler:         handler,
		logger:          log.WithField("component", "kafka-consumer"),
		deadLetterTopic: TopicDeadLetter,
		maxAttempts:     defaultMaxAttempts,
		retryDelay:      defaultRetryDelay,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Start запускает чтение в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		// Consume возвращается при каждом rebalance.
		for {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("kafka consume failed")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("kafka consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
}

// Stop закрывает consumer group и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения partition по одному.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if c.process(session.Context(), message) {
				session.MarkMessage(message, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// process возвращает true, если offset можно зафиксировать: сообщение обработано или передано в DLQ.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	logger := c.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	})

	attempts := priorAttempts(message)
	var err error
	for try := 1; ; try++ {
		attempts++
		if err = c.handler(ctx, message); err == nil {
			return true
		}
		if IsPermanent(err) || try >= c.maxAttempts {
			break
		}
		logger.WithError(err).WithField("attempt", try).Warn("kafka message failed, retrying")
		if !c.sleep(ctx) {
			return false
		}
	}

	logger = logger.WithError(err).WithField("attempts", attempts)
	if c.deadLetter == nil {
		logger.Error("kafka message processing failed")
		return false
	}
	if dlqErr := c.sendToDeadLetter(message, err, attempts); dlqErr != nil {
		logger.WithField("dlq_error", dlqErr.Error()).Error("kafka message could not be dead-lettered")
		return false
	}
	logger.Warn("kafka message moved to dead letter topic")
	return true
}

func (c *Consumer) sleep(ctx context.Context) bool {
	if c.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// sendToDeadLetter пересылает исходное значение без изменений; причина и происхождение: в заголовках.
func (c *Consumer) sendToDeadLetter(message *sarama.ConsumerMessage, cause error, attempts int) error {
	return c.deadLetter.Send(c.deadLetterTopic, string(message.Key), message.Value, map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderAttempts:      strconv.Itoa(attempts),
		HeaderError:         cause.Error(),
		HeaderFailedAt:      c.now().Format(time.RFC3339),
	})
}

func priorAttempts(message *sarama.ConsumerMessage) int {
	value, ok := header(message, HeaderAttempts)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
