package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// DeviceIDHeader lets non-browser clients name their device explicitly.
	DeviceIDHeader = "X-Device-ID"
	// DeviceCookie keeps the device id for browser clients.
	DeviceCookie = "campus_device"

	deviceCookieAge = 365 * 24 * time.Hour
)

type deviceIDKey struct{}

// DeviceIDFromContext returns the device id, or "" outside Device.
func DeviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDKey{}).(string)
	return id
}

// WithDeviceID returns a copy of ctx carrying id.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceIDKey{}, id)
}

// DeviceConfig configures the Device middleware.
type DeviceConfig struct {
	// Secure marks the device cookie Secure.
	Secure bool
}

// Device resolves the calling device from the X-Device-ID header, then the
// device cookie. A request with neither gets a fresh UUID. The id is echoed
// in the header and the cookie is refreshed on every response.
func Device(cfg DeviceConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(DeviceIDHeader)
			if !validDeviceID(id) {
				id = ""
				if c, err := r.Cookie(DeviceCookie); err == nil && validDeviceID(c.Value) {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
			}

			w.Header().Set(DeviceIDHeader, id)
			http.SetCookie(w, &http.Cookie{
				Name:     DeviceCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(deviceCookieAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), id)))
		})
	}
}

// validDeviceID accepts up to 64 letters, digits, '-', '_' and '.', which
// are safe in both headers and cookie values.
func validDeviceID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for i := range len(id) {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
