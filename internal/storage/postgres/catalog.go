package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/campus-eats/internal/domain/catalog"
)

var (
	_ catalog.Repository = (*CatalogRepository)(nil)
	_ catalog.Writer     = (*CatalogRepository)(nil)
)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
// Prices are NUMERIC columns decoded through the shopspring codec.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const mealColumns = `id, display_name, image_url, price, available, restaurant, category, attributes`

func scanMeal(row pgx.Row) (catalog.Meal, error) {
	var (
		m     catalog.Meal
		attrs []byte
	)
	if err := row.Scan(&m.ID, &m.DisplayName, &m.ImageURL, &m.Price, &m.Available, &m.Restaurant, &m.Category, &attrs); err != nil {
		return m, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &m.Attributes); err != nil {
			return m, errors.Wrapf(err, "decode attributes of meal %q", m.ID)
		}
	}
	return m, nil
}

// List returns all meals in import order.
func (r *CatalogRepository) List(ctx context.Context) ([]catalog.Meal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mealColumns+` FROM catalog_meals ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list meals")
	}
	meals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Meal, error) {
		return scanMeal(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan meals")
	}
	return meals, nil
}

// GetByID returns a single meal or catalog.ErrNotFound.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*catalog.Meal, error) {
	m, err := scanMeal(r.pool.QueryRow(ctx, `SELECT `+mealColumns+` FROM catalog_meals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get meal %q", id)
	}
	return &m, nil
}

// Upsert writes meals in one batch. created_at of existing rows is kept so
// listing order stays stable across re-imports.
func (r *CatalogRepository) Upsert(ctx context.Context, meals []catalog.Meal) error {
	batch := &pgx.Batch{}
	for _, m := range meals {
		var attrs []byte
		if len(m.Attributes) > 0 {
			var err error
			if attrs, err = json.Marshal(m.Attributes); err != nil {
				return errors.Wrapf(err, "encode attributes of meal %q", m.ID)
			}
		}
		batch.Queue(`
			INSERT INTO catalog_meals (`+mealColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				image_url = EXCLUDED.image_url,
				price = EXCLUDED.price,
				available = EXCLUDED.available,
				restaurant = EXCLUDED.restaurant,
				category = EXCLUDED.category,
				attributes = EXCLUDED.attributes`,
			m.ID, m.DisplayName, m.ImageURL, m.Price, m.Available, m.Restaurant, m.Category, attrs,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert meals")
	}
	return nil
}
