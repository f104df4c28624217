package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/campus-eats/internal/domain/cart"
	"github.com/xenking/campus-eats/internal/domain/catalog"
	"github.com/xenking/campus-eats/internal/session"
)

type cartResponse struct {
	Items                 []cart.Item        `json:"items"`
	Total                 int64              `json:"total"`
	Count                 int                `json:"count"`
	DeliveryInfo          *cart.DeliveryInfo `json:"deliveryInfo"`
	DeliveryFee           int64              `json:"deliveryFee"`
	TotalWithDelivery     int64              `json:"totalWithDelivery"`
	FreeDeliveryThreshold int64              `json:"freeDeliveryThreshold"`
}

func cartView(s *session.Session) cartResponse {
	store := s.Cart()
	c := store.Snapshot()
	total := c.Total()
	pricing := store.Pricing()
	fee := pricing.DeliveryFee(total)
	return cartResponse{
		Items:                 c.Items,
		Total:                 total,
		Count:                 c.Count(),
		DeliveryInfo:          c.DeliveryInfo,
		DeliveryFee:           fee,
		TotalWithDelivery:     pricing.TotalWithDelivery(total),
		FreeDeliveryThreshold: pricing.FreeDeliveryThreshold,
	}
}

// GetCart returns the cart of the active identity.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(_ context.Context, s *session.Session) (int, any, error) {
		return http.StatusOK, cartView(s), nil
	})
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		s.ClearCart(ctx)
		return http.StatusOK, cartView(s), nil
	})
}

type addItemRequest struct {
	MealID   string          `json:"mealId"`
	Item     json.RawMessage `json:"item"`
	Quantity int             `json:"quantity"`
}

// AddItem adds a catalog meal, or a raw feed record, to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addItemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := checkQuantity(req.Quantity); err != nil {
		writeError(ctx, w, err)
		return
	}
	item, err := h.lineItem(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		s.AddItem(ctx, item, req.Quantity)
		return http.StatusOK, cartView(s), nil
	})
}

func (h *Handler) lineItem(ctx context.Context, req addItemRequest) (cart.Item, error) {
	switch {
	case len(req.Item) > 0:
		m, err := catalog.DecodeRecord(req.Item)
		if err != nil {
			return cart.Item{}, err
		}
		return m.WithImageBase(h.imageBaseURL).LineItem(h.exponent), nil
	case req.MealID != "":
		m, err := h.meals.GetByID(ctx, req.MealID)
		if err != nil {
			return cart.Item{}, err
		}
		return m.WithImageBase(h.imageBaseURL).LineItem(h.exponent), nil
	default:
		return cart.Item{}, &requestError{message: "mealId or item is required"}
	}
}

func checkQuantity(q int) error {
	if q > cart.MaxQuantity {
		return &requestError{message: fmt.Sprintf("quantity must not exceed %d", cart.MaxQuantity)}
	}
	return nil
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it; an
// unknown item leaves the cart unchanged.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if req.Quantity == nil {
		writeError(r.Context(), w, &requestError{message: "quantity is required"})
		return
	}
	if err := checkQuantity(*req.Quantity); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	itemID := r.PathValue("itemId")
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		s.UpdateQuantity(ctx, itemID, *req.Quantity)
		return http.StatusOK, cartView(s), nil
	})
}

// RemoveItem removes a line, or one unit under the decrement policy. An
// unknown item leaves the cart unchanged.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		s.RemoveItem(ctx, itemID)
		return http.StatusOK, cartView(s), nil
	})
}

// SetDeliveryInfo replaces the delivery details of the cart.
func (h *Handler) SetDeliveryInfo(w http.ResponseWriter, r *http.Request) {
	var info cart.DeliveryInfo
	if err := decode(w, r, &info); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		s.SetDeliveryInfo(ctx, &info)
		return http.StatusOK, cartView(s), nil
	})
}

type validationResponse struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems"`
}

// ValidateCart reports whether the cart is ready for a direct order.
func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(_ context.Context, s *session.Session) (int, any, error) {
		resp := validationResponse{Valid: true, Problems: []string{}}
		var vErr *cart.ValidationError
		switch err := s.Cart().Validate(); {
		case errors.As(err, &vErr):
			resp.Valid = false
			resp.Problems = vErr.Problems
		case err != nil:
			return 0, nil, err
		}
		return http.StatusOK, resp, nil
	})
}
