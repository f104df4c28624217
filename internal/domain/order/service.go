package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/campus-eats/internal/domain/cart"
)

// DeliveryETA is how long after placement a direct order is expected.
const DeliveryETA = 45 * time.Minute

// Sentinel errors for order placement and tracking.
var (
	ErrNotAuthenticated = errors.New("must be signed in to place an order")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrOrderNotFound    = errors.New("order not found")
	ErrStatusConflict   = errors.New("order status changed concurrently")
)

// TransitionError is returned when a status change skips or reverses the
// pending, confirmed, delivered sequence.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID string
	Type   Type
	Cart   cart.Cart
}

// Service encapsulates direct order placement.
type Service struct {
	orders  Repository
	pricing cart.Pricing
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates an order Service. A nil tracer provider disables tracing.
func NewService(orders Repository, pricing cart.Pricing, tp trace.TracerProvider) *Service {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Service{
		orders:  orders,
		pricing: pricing,
		tracer:  tp.Tracer("github.com/xenking/campus-eats/internal/domain/order"),
		now:     time.Now,
	}
}

// PlaceOrder prices the cart snapshot, persists the order and returns it.
// Clearing the cart afterwards is up to the caller.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	if req.UserID == "" {
		return nil, ErrNotAuthenticated
	}
	if req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if req.Type == "" {
		req.Type = TypeIndividual
	}

	snapshot := req.Cart.Clone()
	total := snapshot.Total()
	fee := s.pricing.DeliveryFee(total)
	now := s.now()

	o := &Order{
		ID:                  uuid.New().String(),
		UserID:              req.UserID,
		Type:                req.Type,
		Items:               snapshot.Items,
		Total:               total,
		DeliveryFee:         fee,
		FinalTotal:          cart.AddAmounts(total, fee),
		DeliveryInfo:        snapshot.DeliveryInfo,
		Status:              StatusPending,
		CreatedAt:           now,
		EstimatedDeliveryAt: now.Add(DeliveryETA),
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int64("order.final_total", o.FinalTotal),
	)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// ListOrders returns the orders placed by userID.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// GetOrder returns order orderID if it belongs to userID. Orders of other
// users are reported as ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	o, err := s.orders.Get(ctx, orderID)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return nil, ErrOrderNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get order")
	case o.UserID != userID:
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// UpdateStatus advances order orderID of userID to status to. Only the next
// status in the lifecycle is accepted.
func (s *Service) UpdateStatus(ctx context.Context, userID, orderID string, to Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", orderID), attribute.String("order.status", string(to))),
	)
	defer span.End()

	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if next := o.Status.Next(); next == "" || next != to {
		return nil, &TransitionError{From: o.Status, To: to}
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update order status")
	}
	o.Status = to
	return o, nil
}
