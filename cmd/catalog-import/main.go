// Command catalog-import merges meal feeds into the catalog table.
//
// Feeds may overlap. When a meal id appears in more than one file, the file
// listed last wins. Overlaps are found in two streaming passes with one bloom
// filter per file, so memory stays bounded for large feeds.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/campus-eats/internal/domain/catalog"
	"github.com/xenking/campus-eats/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
	maxFiles      = bits.UintSize
)

func main() {
	var (
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "report overlaps without writing")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: catalog-import [flags] feed.json [feed.json.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, dryRun bool) error {
	if len(files) > maxFiles {
		return errors.Errorf("at most %d feed files are supported, got %d", maxFiles, len(files))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find meal ids present in 2+ files.
	slog.Info("pass 2: finding overlapping meal ids")

	owners, err := findOverlaps(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find overlaps")
	}

	slog.Info("overlapping meal ids found", slog.Int("count", len(owners)))

	if dryRun {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Pass 3: Write every meal from the file that owns it.
	if err := writeMeals(ctx, postgres.NewCatalogRepository(pool), files, owners); err != nil {
		return errors.Wrap(err, "write meals to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter of meal ids per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			if err := streamFile(ctx, f, func(m catalog.Meal) error {
				filter.AddString(m.ID)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("meals", count))
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_meals", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findOverlaps re-streams each file and checks ids against the OTHER files'
// bloom filters. Each file only sets its own bit, so a bloom false positive
// leaves a single bit and is discarded. The result maps each id found in 2+
// files to the index of the last file containing it.
func findOverlaps(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]int, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)

			if err := streamFile(ctx, f, func(m catalog.Meal) error {
				for j, other := range filters {
					if j != i && other.TestString(m.ID) {
						candidates[m.ID] |= fileBit
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for overlaps", i+1)
			}

			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolveOwners(results), nil
}

// resolveOwners merges per-file bitmasks and keeps ids set by 2+ files.
func resolveOwners(results []map[string]uint) map[string]int {
	merged := make(map[string]uint)
	for _, r := range results {
		for id, mask := range r {
			merged[id] |= mask
		}
	}

	owners := make(map[string]int)
	for id, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			owners[id] = bits.Len(mask) - 1
		}
	}
	return owners
}

// writeMeals upserts meals in batches, skipping records owned by a later file.
// Within one file a repeated id is written twice and the last record wins.
func writeMeals(ctx context.Context, w catalog.Writer, files []string, owners map[string]int) error {
	for i, f := range files {
		var (
			batch   = make([]catalog.Meal, 0, batchSize)
			written int
			skipped int
		)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := w.Upsert(ctx, batch); err != nil {
				return err
			}
			written += len(batch)
			batch = batch[:0]
			return nil
		}

		if err := streamFile(ctx, f, func(m catalog.Meal) error {
			if owner, ok := owners[m.ID]; ok && owner != i {
				skipped++
				return nil
			}
			batch = append(batch, m)
			if len(batch) == batchSize {
				return flush()
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "import file %d", i+1)
		}
		if err := flush(); err != nil {
			return errors.Wrapf(err, "import file %d", i+1)
		}

		slog.Info("write progress",
			slog.String("file", f),
			slog.Int("written", written),
			slog.Int("shadowed", skipped),
		)
	}
	return nil
}

// streamFile decodes the feed at path and calls fn for each meal.
func streamFile(ctx context.Context, path string, fn func(catalog.Meal) error) error {
	r, err := catalog.OpenFeed(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	return catalog.StreamFeed(r, func(m catalog.Meal) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(m)
	})
}
