package nonce

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

const (
	defaultSweepInterval = 30 * time.Minute
	defaultSweepBatch    = 200
)

var (
	nonceSweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sveapay_nonce_sweep_runs_total",
		Help: "Admin nonce sweep runs grouped by result.",
	}, []string{"result"})
	nonceSweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sveapay_nonce_sweep_deleted_total",
		Help: "Expired admin nonces removed by the sweeper.",
	})
)

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval задаёт период между проходами.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepBatch задаёт, сколько токенов удаляется за один запрос к хранилищу.
func WithSweepBatch(batch int) SweeperOption {
	return func(s *Sweeper) {
		if batch > 0 {
			s.batch = batch
		}
	}
}

// WithSweepLogger задаёт logger.
func WithSweepLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sweeper периодически удаляет истёкшие токены.
type Sweeper struct {
	repo     domain.NonceRepository
	interval time.Duration
	batch    int
	logger   *log.Entry
	now      func() time.Time
}

// NewSweeper создаёт Sweeper.
func NewSweeper(repo domain.NonceRepository, options ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:     repo,
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
		logger:   log.WithField("component", "nonce-sweeper"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run выполняет проход сразу и затем по таймеру до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("nonce sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	deleted, err := s.Sweep(ctx, s.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		nonceSweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("nonce sweep failed")
		return
	}
	nonceSweepRuns.WithLabelValues("ok").Inc()
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Debug("expired nonces removed")
	}
}

// Sweep удаляет токены, истёкшие к моменту before, пачками до исчерпания.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.repo.DeleteExpired(before, s.batch)
		if err != nil {
			return total, err
		}
		total += n
		nonceSweepDeleted.Add(float64(n))
		if n < s.batch {
			return total, nil
		}
	}
}
