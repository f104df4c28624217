package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/internal/domain/catalog"
	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/domain/order"
	"github.com/xenking/campus-eats/internal/session"
	"github.com/xenking/campus-eats/internal/storage/memory"
	"github.com/xenking/campus-eats/internal/storage/postgres"
	"github.com/xenking/campus-eats/pkg/health"
)

type catalogStore interface {
	catalog.Repository
	catalog.Writer
}

// stores bundles the repositories of one storage backend.
type stores struct {
	kv      session.Storage
	slots   delivery.SlotRepository
	meals   catalogStore
	orders  order.Repository
	backend string
	// ping is nil for the in-memory backend.
	ping  health.Pinger
	close func()
}

// openStores connects to PostgreSQL when a database URL is configured and
// falls back to in-process storage otherwise.
func openStores(ctx context.Context, cfg *Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		zctx.From(ctx).Warn("No database configured, state is kept in memory")
		return &stores{
			kv:      memory.NewKV(),
			slots:   memory.NewSlotRepository(delivery.DefaultSlots()),
			meals:   memory.NewCatalogRepository(),
			orders:  memory.NewOrderRepository(),
			backend: "memory",
			close:   func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	slots := postgres.NewSlotRepository(pool)
	if err := slots.EnsureSlots(ctx, delivery.DefaultSlots()); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ensure slots")
	}

	return &stores{
		kv:      postgres.NewKVRepository(pool),
		slots:   slots,
		meals:   postgres.NewCatalogRepository(pool),
		orders:  postgres.NewOrderRepository(pool),
		backend: "postgres",
		ping:    pool,
		close:   pool.Close,
	}, nil
}

// loadCatalog upserts the configured feed file, if any.
func loadCatalog(ctx context.Context, path string, w catalog.Writer) error {
	if path == "" {
		return nil
	}
	meals, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}
	if err := w.Upsert(ctx, meals); err != nil {
		return errors.Wrap(err, "store catalog")
	}
	zctx.From(ctx).Info("Catalog loaded", zap.String("file", path), zap.Int("meals", len(meals)))
	return nil
}
