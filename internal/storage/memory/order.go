package memory

import (
	"context"
	"sync"

	"github.com/xenking/campus-eats/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders by id, remembering each user's placement
// order.
type OrderRepository struct {
	mu     sync.RWMutex
	byID   map[string]order.Order
	byUser map[string][]string
}

// NewOrderRepository creates an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:   make(map[string]order.Order),
		byUser: make(map[string][]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[o.ID] = *o
	r.byUser[o.UserID] = append(r.byUser[o.UserID], o.ID)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byUser[userID]
	out := make([]order.Order, len(ids))
	for i, id := range ids {
		out[i] = r.byID[id]
	}
	return out, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	r.byID[id] = o
	return nil
}
