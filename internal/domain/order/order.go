package order

import (
	"context"
	"time"

	"github.com/xenking/campus-eats/internal/domain/cart"
)

// Type distinguishes direct orders from orders placed for a group delivery.
type Type string

const (
	TypeIndividual Type = "individual"
	TypeGroup      Type = "group"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
)

// Next returns the status that follows s, or "" when s is final or unknown.
func (s Status) Next() Status {
	switch s {
	case StatusPending:
		return StatusConfirmed
	case StatusConfirmed:
		return StatusDelivered
	default:
		return ""
	}
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusDelivered:
		return st, true
	default:
		return "", false
	}
}

// Order represents a placed direct order.
type Order struct {
	ID                  string
	UserID              string
	Type                Type
	Items               []cart.Item
	Total               int64
	DeliveryFee         int64
	FinalTotal          int64
	DeliveryInfo        *cart.DeliveryInfo
	Status              Status
	CreatedAt           time.Time
	EstimatedDeliveryAt time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	// Get returns ErrOrderNotFound when no order has the given id.
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// UpdateStatus sets the status of order id to to, provided it is still
	// from. Otherwise it returns ErrStatusConflict, or ErrOrderNotFound.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}
