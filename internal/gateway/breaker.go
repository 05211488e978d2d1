package gateway

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type circuit struct {
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// Breaker — circuit breaker с отдельным состоянием на каждое семейство операций провайдера.
type Breaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	circuits     map[string]*circuit
	now          func() time.Time
	logger       *log.Entry
}

// NewBreaker создаёт circuit breaker. После maxFailures подряд круг размыкается на resetTimeout.
func NewBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *Breaker {
	if logger == nil {
		logger = log.New().WithField("component", "gateway-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		circuits:     make(map[string]*circuit),
		now:          time.Now,
		logger:       logger,
	}
}

// Execute выполняет fn, если круг для key не разомкнут. Разомкнутый круг возвращает ErrVendorUnavailable.
func (b *Breaker) Execute(key string, fn func() error) error {
	if err := b.allow(key); err != nil {
		return err
	}

	err := fn()
	b.record(key, err)
	return err
}

// State возвращает текущее состояние круга без перехода open → half-open.
func (b *Breaker) State(key string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return CircuitClosed
	}
	return c.state
}

// Healthy сообщает, что ни один круг не разомкнут.
func (b *Breaker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.circuits {
		if c.state == CircuitOpen {
			return false
		}
	}
	return true
}

func (b *Breaker) allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key)
	if c.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(c.lastFailure) > b.resetTimeout {
		c.state = CircuitHalfOpen
		b.logger.WithField("family", key).Info("circuit breaker half-open")
		return nil
	}
	return domain.ErrVendorUnavailable
}

func (b *Breaker) record(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(key)
	if err != nil {
		c.failures++
		c.lastFailure = b.now()

		if c.state == CircuitHalfOpen || c.failures >= b.maxFailures {
			if c.state != CircuitOpen {
				b.logger.WithFields(log.Fields{
					"family":   key,
					"failures": c.failures,
				}).Warn("circuit breaker opened")
			}
			c.state = CircuitOpen
		}
		return
	}

	if c.state == CircuitHalfOpen {
		b.logger.WithField("family", key).Info("circuit breaker closed")
	}
	c.state = CircuitClosed
	c.failures = 0
}

func (b *Breaker) circuit(key string) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{state: CircuitClosed}
		b.circuits[key] = c
	}
	return c
}
