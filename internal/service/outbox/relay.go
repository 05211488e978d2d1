// Package outbox доставляет события согласования из transactional outbox во внешний брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
)

const (
	defaultInterval = time.Second
	defaultBatch    = 50
	defaultAttempts = 3
	defaultBackoff  = 100 * time.Millisecond
	maxBackoff      = 5 * time.Second
)

// Options — параметры Relay.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.OutboxMetrics
	DeadLetter  domain.OutboxPublisher
	Interval    time.Duration
	Batch       int
	MaxAttempts int
	Backoff     time.Duration
}

// Option настраивает Relay.
type Option func(*Options)

func WithLogger(logger *log.Entry) Option { return func(o *Options) { o.Logger = logger } }

func WithMetrics(m *metrics.OutboxMetrics) Option { return func(o *Options) { o.Metrics = m } }

// WithDeadLetter задаёт publisher для событий, исчерпавших попытки.
func WithDeadLetter(p domain.OutboxPublisher) Option { return func(o *Options) { o.DeadLetter = p } }

func WithInterval(d time.Duration) Option { return func(o *Options) { o.Interval = d } }

func WithBatch(n int) Option { return func(o *Options) { o.Batch = n } }

func WithMaxAttempts(n int) Option { return func(o *Options) { o.MaxAttempts = n } }

// WithBackoff задаёт первую паузу между попытками; далее пауза удваивается до maxBackoff.
func WithBackoff(d time.Duration) Option { return func(o *Options) { o.Backoff = d } }

// Relay забирает pending-события и публикует их по одному, сохраняя порядок постановки.
type Relay struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      Options
	now       func() time.Time
}

// NewRelay создаёт Relay.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Relay {
	opts := Options{
		Interval:    defaultInterval,
		Batch:       defaultBatch,
		MaxAttempts: defaultAttempts,
		Backoff:     defaultBackoff,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-relay")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewOutboxMetricsWithRegisterer(nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Batch <= 0 {
		opts.Batch = defaultBatch
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Relay{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run публикует backlog до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.opts.Logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		r.Flush(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush обрабатывает одну пачку и возвращает число взятых событий.
func (r *Relay) Flush(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer r.observeBacklog()

	events, err := r.repo.PullPending(r.opts.Batch)
	if err != nil {
		r.opts.Logger.WithError(err).Warn("pull pending outbox events failed")
		return 0
	}

	for i, event := range events {
		if ctx.Err() != nil {
			return i
		}
		r.deliver(ctx, event)
	}
	return len(events)
}

func (r *Relay) deliver(ctx context.Context, event domain.OutboxMessage) {
	logger := r.opts.Logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
		"order_id":   event.AggregateID,
	})

	err := r.publish(ctx, event)
	if err == nil {
		if markErr := r.repo.MarkSent(event.ID); markErr != nil {
			logger.WithError(markErr).Warn("mark outbox event sent failed")
		}
		return
	}
	if ctx.Err() != nil {
		// Событие остаётся pending и уйдёт после перезапуска.
		return
	}

	logger.WithError(err).Error("outbox event exhausted publish attempts")
	r.opts.Metrics.RecordPublish(event.EventType, metrics.PublishFailed)
	r.deadLetter(logger, event, err)
	if markErr := r.repo.MarkFailed(event.ID); markErr != nil {
		logger.WithError(markErr).Warn("mark outbox event failed failed")
	}
}

func (r *Relay) publish(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	wait := r.opts.Backoff

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if lastErr = r.publisher.Publish(event); lastErr == nil {
			r.opts.Metrics.RecordPublish(event.EventType, metrics.PublishSent)
			return nil
		}
		r.opts.Metrics.RecordPublish(event.EventType, metrics.PublishRetry)
		if attempt == r.opts.MaxAttempts || wait == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", domain.ErrOutboxPublish, r.opts.MaxAttempts, lastErr)
}

// deadLetterEnvelope — обёртка события в DLQ; исходный payload сохраняется без изменений.
type deadLetterEnvelope struct {
	OutboxID  string          `json:"outbox_id"`
	OrderID   string          `json:"order_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	FailedAt  string          `json:"failed_at"`
}

func (r *Relay) deadLetter(logger *log.Entry, event domain.OutboxMessage, cause error) {
	if r.opts.DeadLetter == nil {
		return
	}

	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(event.Payload))
	}
	body, err := json.Marshal(deadLetterEnvelope{
		OutboxID:  event.ID,
		OrderID:   event.AggregateID,
		EventType: event.EventType,
		Payload:   payload,
		Error:     cause.Error(),
		FailedAt:  r.now().Format(time.RFC3339Nano),
	})
	if err == nil {
		dlq := event
		dlq.Payload = body
		err = r.opts.DeadLetter.Publish(dlq)
	}
	if err != nil {
		logger.WithError(err).Warn("publish outbox event to dead letter failed")
		r.opts.Metrics.RecordPublish(event.EventType, metrics.PublishDLQFailed)
		return
	}
	r.opts.Metrics.RecordPublish(event.EventType, metrics.PublishDeadLetter)
}

func (r *Relay) observeBacklog() {
	stats, err := r.repo.Stats()
	if err != nil {
		r.opts.Logger.WithError(err).Warn("collect outbox backlog stats failed")
		return
	}
	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = r.now().Sub(stats.OldestPendingAt)
	}
	r.opts.Metrics.SetBacklog(stats.PendingCount, age)
}
