// Package handler serves the storefront JSON API over net/http.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/internal/domain/catalog"
	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/session"
	"github.com/xenking/campus-eats/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies. Raw catalog records are small.
const maxBodyBytes = 64 << 10

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative meal image paths.
	ImageBaseURL string
	// CurrencyExponent is the number of minor-unit digits of catalog prices.
	CurrencyExponent int32
}

// Handler routes API requests to the session, catalog and delivery layers.
type Handler struct {
	sessions  *session.Manager
	meals     catalog.Repository
	allocator *delivery.Allocator

	imageBaseURL string
	exponent     int32
}

// New constructs a Handler with the required dependencies.
func New(cfg Config, sessions *session.Manager, meals catalog.Repository, allocator *delivery.Allocator) *Handler {
	return &Handler{
		sessions:     sessions,
		meals:        meals,
		allocator:    allocator,
		imageBaseURL: cfg.ImageBaseURL,
		exponent:     cfg.CurrencyExponent,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/meals", h.ListMeals)
	mux.HandleFunc("GET /api/meals/{mealId}", h.GetMeal)

	mux.HandleFunc("GET /api/session", h.GetSession)
	mux.HandleFunc("POST /api/session/login", h.Login)
	mux.HandleFunc("POST /api/session/signup", h.Signup)
	mux.HandleFunc("POST /api/session/logout", h.Logout)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("PUT /api/cart/items/{itemId}", h.UpdateQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{itemId}", h.RemoveItem)
	mux.HandleFunc("PUT /api/cart/delivery-info", h.SetDeliveryInfo)
	mux.HandleFunc("GET /api/cart/validation", h.ValidateCart)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{orderId}", h.GetOrder)
	mux.HandleFunc("PUT /api/orders/{orderId}/status", h.UpdateOrderStatus)

	mux.HandleFunc("GET /api/group-deliveries/slots", h.ListSlots)
	mux.HandleFunc("POST /api/group-deliveries", h.JoinGroupDelivery)
	mux.HandleFunc("GET /api/group-deliveries", h.ListGroupDeliveries)
}

// sessionFunc does the work of one request inside the device's session. It
// returns the status and body to write.
type sessionFunc func(ctx context.Context, s *session.Session) (int, any, error)

// inSession resolves the device session and runs fn serialized with other
// requests of the same device.
func (h *Handler) inSession(w http.ResponseWriter, r *http.Request, fn sessionFunc) {
	ctx := r.Context()
	deviceID := httpmiddleware.DeviceIDFromContext(ctx)
	if deviceID == "" {
		writeError(ctx, w, &requestError{message: "missing device id"})
		return
	}

	s := h.sessions.Get(ctx, deviceID)
	var (
		status int
		body   any
	)
	err := s.Do(func() (err error) {
		status, body, err = fn(ctx, s)
		return err
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, status, body)
}

// requestError is a malformed request.
type requestError struct {
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *requestError) Unwrap() error {
	return e.err
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &requestError{message: "invalid request body", err: err}
	}
	return nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(ctx).Debug("Write response", zap.Error(err))
	}
}
