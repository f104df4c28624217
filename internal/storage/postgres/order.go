package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/campus-eats/internal/domain/cart"
	"github.com/xenking/campus-eats/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items and delivery info are stored as
// JSONB snapshots.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	var infoJSON []byte
	if o.DeliveryInfo != nil {
		if infoJSON, err = json.Marshal(o.DeliveryInfo); err != nil {
			return errors.Wrap(err, "marshal delivery info")
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, order_type, items, total, delivery_fee, final_total,
			delivery_info, status, created_at, estimated_delivery_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserID, string(o.Type), itemsJSON, o.Total, o.DeliveryFee, o.FinalTotal,
		infoJSON, string(o.Status), o.CreatedAt, o.EstimatedDeliveryAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

const orderColumns = `id, user_id, order_type, items, total, delivery_fee, final_total,
	delivery_info, status, created_at, estimated_delivery_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o                 order.Order
		typ, status       string
		itemsJSON, infoJS []byte
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &typ, &itemsJSON, &o.Total, &o.DeliveryFee, &o.FinalTotal,
		&infoJS, &status, &o.CreatedAt, &o.EstimatedDeliveryAt,
	); err != nil {
		return o, err
	}
	o.Type = order.Type(typ)
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrapf(err, "decode items of order %q", o.ID)
	}
	if len(infoJS) > 0 {
		o.DeliveryInfo = new(cart.DeliveryInfo)
		if err := json.Unmarshal(infoJS, o.DeliveryInfo); err != nil {
			return o, errors.Wrapf(err, "decode delivery info of order %q", o.ID)
		}
	}
	return o, nil
}

// Get returns one order or order.ErrOrderNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// ListByUser returns the user's orders, oldest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of %q", userID)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return orders, nil
}

// UpdateStatus changes the status only while it still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return errors.Wrapf(err, "update status of order %q", id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return order.ErrStatusConflict
}
