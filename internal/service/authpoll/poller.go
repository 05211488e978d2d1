// Package authpoll откладывает проверку заказов, ожидающих строгой аутентификации покупателя.
package authpoll

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/metrics"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

const (
	// DefaultDelay — через сколько после создания заказа проверяется результат идентификации.
	DefaultDelay = 10 * time.Minute

	defaultCheckTimeout = 30 * time.Second
	defaultRearmLimit   = 1000
)

// Исходы срабатывания таймера.
const (
	OutcomeFinished = "finished"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"

	// OutcomeReplaced и OutcomeCancelled: таймер снят до срабатывания.
	OutcomeReplaced  = "replaced"
	OutcomeCancelled = "cancelled"
)

// Checker — финальная проверка заказа; реализуется reconcile.Engine.
type Checker interface {
	CheckStrongAuth(ctx context.Context, orderID string) (reconcile.Outcome, error)
}

// Options задаёт параметры Poller.
type Options struct {
	Logger       *log.Entry
	Metrics      *metrics.ReconcileMetrics
	Delay        time.Duration
	CheckTimeout time.Duration
	// AfterFunc подменяет time.AfterFunc в тестах.
	AfterFunc func(d time.Duration, f func()) Timer
}

// Option настраивает Poller.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.ReconcileMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithDelay задаёт задержку проверки.
func WithDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.Delay = delay
	}
}

// WithCheckTimeout ограничивает время одной проверки.
func WithCheckTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.CheckTimeout = timeout
	}
}

// WithAfterFunc подменяет планировщик таймеров.
func WithAfterFunc(fn func(d time.Duration, f func()) Timer) Option {
	return func(opts *Options) {
		opts.AfterFunc = fn
	}
}

// Timer — отменяемый одноразовый таймер.
type Timer interface {
	Stop() bool
}

// Poller держит по одному таймеру на заказ. Таймеры живут только в памяти процесса,
// после рестарта их восстанавливает Rearm.
type Poller struct {
	checker   Checker
	logger    *log.Entry
	metrics   *metrics.ReconcileMetrics
	delay     time.Duration
	timeout   time.Duration
	afterFunc func(d time.Duration, f func()) Timer

	mu      sync.Mutex
	timers  map[string]scheduled
	seq     uint64
	stopped bool
	wg      sync.WaitGroup
}

type scheduled struct {
	timer Timer
	seq   uint64
}

// NewPoller создаёт Poller.
func NewPoller(checker Checker, options ...Option) *Poller {
	opts := Options{
		Delay:        DefaultDelay,
		CheckTimeout: defaultCheckTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "strong-auth-poller")
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheckTimeout
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}

	return &Poller{
		checker:   checker,
		logger:    logger,
		metrics:   opts.Metrics,
		delay:     opts.Delay,
		timeout:   opts.CheckTimeout,
		afterFunc: afterFunc,
		timers:    make(map[string]scheduled),
	}
}

// Schedule ставит проверку заказа через Delay. Повторный вызов заменяет ожидающий таймер.
func (p *Poller) Schedule(orderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		p.logger.WithField("order_id", orderID).Warn("poller stopped, strong auth check not scheduled")
		return
	}
	if existing, ok := p.timers[orderID]; ok {
		existing.timer.Stop()
		p.recordFired(OutcomeReplaced)
	}

	p.seq++
	seq := p.seq
	timer := p.afterFunc(p.delay, func() { p.fire(orderID, seq) })
	p.timers[orderID] = scheduled{timer: timer, seq: seq}

	if p.metrics != nil {
		p.metrics.RecordPollerScheduled()
	}
	p.logger.WithFields(log.Fields{
		"order_id": orderID,
		"delay":    p.delay.String(),
	}).Debug("strong auth check scheduled")
}

// Pending — число ожидающих таймеров.
func (p *Poller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// Rearm ставит проверки для заказов, оставшихся pending под строгой аутентификацией.
func (p *Poller) Rearm(orders domain.OrderRepository) (int, error) {
	pending, err := orders.ListStrongAuthPending(defaultRearmLimit)
	if err != nil {
		return 0, err
	}
	for _, order := range pending {
		p.Schedule(order.ID)
	}
	if len(pending) > 0 {
		p.logger.WithField("orders", len(pending)).Info("strong auth checks re-armed")
	}
	return len(pending), nil
}

// Stop отменяет все ожидающие таймеры и ждёт завершения уже начатых проверок.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	for id, entry := range p.timers {
		entry.timer.Stop()
		delete(p.timers, id)
		p.recordFired(OutcomeCancelled)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) fire(orderID string, seq uint64) {
	p.mu.Lock()
	current, ok := p.timers[orderID]
	// Таймер мог быть заменён повторным Schedule или отменён Stop.
	if p.stopped || !ok || current.seq != seq {
		p.mu.Unlock()
		return
	}
	delete(p.timers, orderID)
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	p.recordFired(p.Check(orderID))
}

func (p *Poller) recordFired(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordPollerFired(outcome)
	}
}

// Check выполняет проверку заказа немедленно и возвращает исход.
func (p *Poller) Check(orderID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	logger := p.logger.WithField("order_id", orderID)
	out, err := p.checker.CheckStrongAuth(ctx, orderID)

	outcome := OutcomeFinished
	switch {
	case err != nil:
		logger.WithError(err).Warn("strong auth check failed, order left untouched")
		return OutcomeError
	case out.NoOp:
		outcome = OutcomeSkipped
	case out.Status == domain.OrderStatusCancelled:
		outcome = OutcomeRejected
	}
	logger.WithFields(log.Fields{
		"outcome": outcome,
		"status":  out.Status,
	}).Info("strong auth check completed")
	return outcome
}
