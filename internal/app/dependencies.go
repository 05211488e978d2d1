package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/storage/memory"
	"github.com/vladislavdragonenkov/sveapay/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного хранилища.
type runtimeDependencies struct {
	orders        domain.OrderRepository
	subscriptions domain.SubscriptionRepository
	nonces        domain.NonceRepository
	timeline      domain.TimelineRepository
	outbox        domain.OutboxRepository

	// store задан только для postgres; используется health-check-ом.
	store *postgres.Store
}

// close освобождает пул соединений.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.store == nil {
		return
	}
	if err := d.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
		return
	}
	logger.Info("postgres store closed")
}

// initRuntimeDependencies открывает хранилище согласно cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			orders:        memory.NewOrderRepository(),
			subscriptions: memory.NewSubscriptionRepository(),
			nonces:        memory.NewNonceRepository(),
			timeline:      memory.NewTimelineRepository(),
			outbox:        memory.NewOutboxRepository(),
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			applied, err := store.MigrateUp(ctx, 0)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.WithField("applied", applied).Info("postgres migrations applied")
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			orders:        postgres.NewOrderRepository(store),
			subscriptions: postgres.NewSubscriptionRepository(store),
			nonces:        postgres.NewNonceRepository(store),
			timeline:      postgres.NewTimelineRepository(store),
			outbox:        postgres.NewOutboxRepository(store),
			store:         store,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
