package handler

import (
	"context"
	"net/http"

	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/session"
)

// ListSlots returns every group delivery slot with its current split fee.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quotes, err := h.allocator.Slots(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, quotes)
}

type joinRequest struct {
	SlotID      int                  `json:"slotId"`
	StudentInfo delivery.StudentInfo `json:"studentInfo"`
}

type joinResponse struct {
	delivery.Order
	Savings int64 `json:"savings"`
}

// JoinGroupDelivery joins a slot with a snapshot of the device's cart.
func (h *Handler) JoinGroupDelivery(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		o, err := s.JoinGroupDelivery(ctx, req.SlotID, req.StudentInfo)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, joinResponse{Order: *o, Savings: o.Savings()}, nil
	})
}

// ListGroupDeliveries returns the joins made from this device, oldest first.
func (h *Handler) ListGroupDeliveries(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		return http.StatusOK, s.GroupDeliveries(ctx), nil
	})
}
