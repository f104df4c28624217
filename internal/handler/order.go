package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xenking/campus-eats/internal/domain/cart"
	"github.com/xenking/campus-eats/internal/domain/order"
	"github.com/xenking/campus-eats/internal/session"
)

type orderResponse struct {
	ID                    string             `json:"id"`
	UserID                string             `json:"userId"`
	OrderType             order.Type         `json:"orderType"`
	Items                 []cart.Item        `json:"items"`
	Total                 int64              `json:"total"`
	DeliveryFee           int64              `json:"deliveryFee"`
	FinalTotal            int64              `json:"finalTotal"`
	DeliveryInfo          *cart.DeliveryInfo `json:"deliveryInfo"`
	Status                order.Status       `json:"status"`
	CreatedAt             time.Time          `json:"createdAt"`
	EstimatedDeliveryTime time.Time          `json:"estimatedDeliveryTime"`
}

func toOrderResponse(o order.Order) orderResponse {
	return orderResponse{
		ID:                    o.ID,
		UserID:                o.UserID,
		OrderType:             o.Type,
		Items:                 o.Items,
		Total:                 o.Total,
		DeliveryFee:           o.DeliveryFee,
		FinalTotal:            o.FinalTotal,
		DeliveryInfo:          o.DeliveryInfo,
		Status:                o.Status,
		CreatedAt:             o.CreatedAt,
		EstimatedDeliveryTime: o.EstimatedDeliveryAt,
	}
}

type placeOrderRequest struct {
	OrderType order.Type `json:"orderType"`
}

// PlaceOrder checks out the cart of the signed-in user and clears it.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	switch req.OrderType {
	case "", order.TypeIndividual, order.TypeGroup:
	default:
		writeError(r.Context(), w, &requestError{message: "orderType must be individual or group"})
		return
	}
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		o, err := s.Checkout(ctx, req.OrderType)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, toOrderResponse(*o), nil
	})
}

// ListOrders returns the direct orders of the signed-in user.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		orders, err := s.Orders(ctx)
		if err != nil {
			return 0, nil, err
		}
		resp := make([]orderResponse, len(orders))
		for i, o := range orders {
			resp[i] = toOrderResponse(o)
		}
		return http.StatusOK, resp, nil
	})
}

// GetOrder returns one order of the signed-in user.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		o, err := s.Order(ctx, orderID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toOrderResponse(*o), nil
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus advances an order to the next lifecycle status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	to, ok := order.ParseStatus(req.Status)
	if !ok {
		writeError(r.Context(), w, &requestError{message: "status must be pending, confirmed or delivered"})
		return
	}
	orderID := r.PathValue("orderId")
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		o, err := s.AdvanceOrder(ctx, orderID, to)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, toOrderResponse(*o), nil
	})
}
