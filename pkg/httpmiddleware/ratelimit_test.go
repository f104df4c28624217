package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.RemoteAddr = ip + ":40000"
	return req
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(handler, fromIP("192.168.1.1"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(handler, fromIP("10.0.0.1")).Code)
	}

	w := serve(handler, fromIP("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, fromIP("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, fromIP("10.0.0.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, fromIP("10.0.0.1")).Code)
}

func TestRateLimit_KeyedByDevice(t *testing.T) {
	handler := Wrap(okHandler(),
		Device(DeviceConfig{}),
		RateLimit(RateLimitConfig{Max: 1, Window: time.Minute}),
	)

	withDevice := func(id string) *http.Request {
		req := fromIP("10.0.0.1")
		req.Header.Set(DeviceIDHeader, id)
		return req
	}

	assert.Equal(t, http.StatusOK, serve(handler, withDevice("dev-a")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, withDevice("dev-b")).Code, "same IP, other device")
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, withDevice("dev-a")).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	req := fromIP("192.168.1.1")
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	assert.Equal(t, http.StatusOK, serve(handler, req).Code)

	req2 := fromIP("192.168.1.2")
	req2.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, req2).Code)
}

func TestLimiter_Sweep(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()

	_, _, _, ok := l.take("ip:1", now)
	require.True(t, ok)
	_, _, _, ok = l.take("ip:1", now)
	require.False(t, ok)

	l.sweep(now.Add(2 * time.Second))
	assert.Empty(t, l.buckets)
}
