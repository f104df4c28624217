package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/internal/domain/catalog"
	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/domain/identity"
	"github.com/xenking/campus-eats/internal/domain/order"
)

// apiError is the JSON error body of every failed request.
type apiError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// toAPIError maps domain errors to HTTP errors. Unknown errors become 500
// with a generic message.
func toAPIError(err error) apiError {
	var (
		reqErr   *requestError
		fieldErr *identity.FieldError
		joinErr  *delivery.ValidationError
		recErr   *catalog.RecordError
		trErr    *order.TransitionError
	)
	switch {
	case errors.As(err, &reqErr):
		return apiError{Code: http.StatusBadRequest, Message: reqErr.Error()}
	case errors.As(err, &fieldErr):
		return apiError{
			Code:    http.StatusBadRequest,
			Message: fieldErr.Error(),
			Fields:  map[string]string{fieldErr.Field: fieldErr.Message},
		}
	case errors.Is(err, delivery.ErrSlotFull):
		return apiError{Code: http.StatusConflict, Message: delivery.ErrSlotFull.Error()}
	case errors.As(err, &joinErr):
		return apiError{
			Code:    http.StatusBadRequest,
			Message: joinErr.Err.Error(),
			Fields:  map[string]string{joinErr.Field: joinErr.Err.Error()},
		}
	case errors.Is(err, delivery.ErrSlotNotFound):
		return apiError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, catalog.ErrNotFound):
		return apiError{Code: http.StatusNotFound, Message: catalog.ErrNotFound.Error()}
	case errors.As(err, &recErr):
		return apiError{Code: http.StatusBadRequest, Message: "invalid item: " + recErr.Reason}
	case errors.Is(err, order.ErrNotAuthenticated):
		return apiError{Code: http.StatusUnauthorized, Message: order.ErrNotAuthenticated.Error()}
	case errors.Is(err, order.ErrEmptyCart):
		return apiError{Code: http.StatusBadRequest, Message: order.ErrEmptyCart.Error()}
	case errors.Is(err, order.ErrOrderNotFound):
		return apiError{Code: http.StatusNotFound, Message: order.ErrOrderNotFound.Error()}
	case errors.As(err, &trErr):
		return apiError{Code: http.StatusConflict, Message: trErr.Error()}
	case errors.Is(err, order.ErrStatusConflict):
		return apiError{Code: http.StatusConflict, Message: order.ErrStatusConflict.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apiError{Code: http.StatusServiceUnavailable, Message: "request cancelled"}
	default:
		return apiError{Code: http.StatusInternalServerError, Message: "internal error"}
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	e := toAPIError(err)
	if e.Code >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	}
	writeJSON(ctx, w, e.Code, e)
}
