package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/campus-eats/internal/domain/catalog"
	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		mealsFile   string
		resetSlots  bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&mealsFile, "meals-file", "db/seed/meals.json", "path to the meal feed (JSON, optionally .gz)")
	flag.BoolVar(&resetSlots, "reset-slots", false, "reset delivery slot participant counts to their defaults")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, mealsFile, resetSlots); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, mealsFile string, resetSlots bool) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMeals(ctx, postgres.NewCatalogRepository(pool), mealsFile); err != nil {
		return errors.Wrap(err, "seed meals")
	}

	if err := seedSlots(ctx, postgres.NewSlotRepository(pool), resetSlots); err != nil {
		return errors.Wrap(err, "seed slots")
	}

	return nil
}

func seedMeals(ctx context.Context, repo *postgres.CatalogRepository, mealsFile string) error {
	slog.Info("reading meal feed", slog.String("path", mealsFile))

	meals, err := catalog.LoadFile(mealsFile)
	if err != nil {
		return err
	}

	slog.Info("upserting meals", slog.Int("count", len(meals)))

	if err := repo.Upsert(ctx, meals); err != nil {
		return err
	}
	for _, m := range meals {
		slog.Info("upserted meal", slog.String("id", m.ID), slog.String("name", m.DisplayName))
	}

	return nil
}

func seedSlots(ctx context.Context, repo *postgres.SlotRepository, reset bool) error {
	slots := delivery.DefaultSlots()

	if !reset {
		slog.Info("ensuring delivery slots", slog.Int("count", len(slots)))
		return repo.EnsureSlots(ctx, slots)
	}

	slog.Info("resetting delivery slots", slog.Int("count", len(slots)))
	if err := repo.UpsertSlots(ctx, slots); err != nil {
		return err
	}
	for _, s := range slots {
		slog.Info("reset slot",
			slog.Int("id", s.ID),
			slog.String("window", s.TimeWindow),
			slog.Int("participants", s.ParticipantCount),
		)
	}

	return nil
}
