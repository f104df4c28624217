package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/campus-eats/internal/domain/cart"
	"github.com/xenking/campus-eats/internal/domain/delivery"
)

var (
	_ cart.Storage           = (*KVRepository)(nil)
	_ delivery.RecordStorage = (*KVRepository)(nil)
)

// KVRepository stores JSON records by key in kv_records.
type KVRepository struct {
	pool *pgxpool.Pool
}

// NewKVRepository returns a KVRepository that uses the given pool.
func NewKVRepository(pool *pgxpool.Pool) *KVRepository {
	return &KVRepository{pool: pool}
}

// Get returns the record at key, or nil when absent.
func (r *KVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `SELECT value FROM kv_records WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get record %q", key)
	}
	return value, nil
}

// Put overwrites the record at key. value must be valid JSON.
func (r *KVRepository) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO kv_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return errors.Wrapf(err, "put record %q", key)
	}
	return nil
}

// Delete removes the record at key.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key); err != nil {
		return errors.Wrapf(err, "delete record %q", key)
	}
	return nil
}
