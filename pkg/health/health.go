// Package health serves liveness and readiness checks.
//
// Checks run in the background on a ticker. A check turns unhealthy only
// after a run of consecutive failures and healthy again after a run of
// successes, so a single slow storage ping does not take the service out of
// rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc reports a problem with a dependency, or nil.
type CheckFunc func(ctx context.Context) error

// CheckOption tunes a registered check.
type CheckOption func(*check)

// WithTimeout bounds a single run of the check. Default 5s.
func WithTimeout(d time.Duration) CheckOption {
	return func(c *check) { c.timeout = d }
}

// WithThresholds sets how many consecutive failures mark the check
// unhealthy and how many successes mark it healthy again. Defaults 3 and 1.
func WithThresholds(failures, successes int) CheckOption {
	return func(c *check) {
		c.failAfter = max(failures, 1)
		c.passAfter = max(successes, 1)
	}
}

type check struct {
	name      string
	fn        CheckFunc
	timeout   time.Duration
	failAfter int
	passAfter int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the single goroutine calling run.
	fails, passes int
}

func newCheck(name string, fn CheckFunc, opts []CheckOption) *check {
	c := &check{name: name, fn: fn, timeout: 5 * time.Second, failAfter: 3, passAfter: 1}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)
	return c
}

// run executes the check once and reports whether its health flipped.
func (c *check) run(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	if err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.passes = 0
		c.fails++
		if c.fails >= c.failAfter && c.healthy.Load() {
			c.healthy.Store(false)
			return true
		}
		return false
	}

	c.lastErr.Store(nil)
	c.fails = 0
	c.passes++
	if c.passes >= c.passAfter && !c.healthy.Load() {
		c.healthy.Store(true)
		return true
	}
	return false
}

func (c *check) status() CheckStatus {
	s := CheckStatus{Healthy: c.healthy.Load()}
	if p := c.lastErr.Load(); p != nil {
		s.Error = *p
	}
	return s
}

// Health owns the liveness and readiness checks of the service.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	live   []*check
	readyz []*check
	cancel context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process
// should be restarted.
func (h *Health) AddLivenessCheck(name string, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newCheck(name, fn, opts))
}

// AddReadinessCheck registers a check that decides whether the service
// should receive traffic, such as a storage ping.
func (h *Health) AddReadinessCheck(name string, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyz = append(h.readyz, newCheck(name, fn, opts))
}

// Start runs every registered check each interval until Stop or until ctx is
// done. Health transitions are logged with the context logger.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*check(nil), h.live...), h.readyz...)
	h.mu.Unlock()

	for _, c := range checks {
		go loop(ctx, c, interval)
	}
}

func loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.run(ctx) {
			st := c.status()
			zctx.From(ctx).Warn("Health check changed",
				zap.String("check", c.name),
				zap.Bool("healthy", st.Healthy),
				zap.String("error", st.Error),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the background checks. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady marks the service ready or, during shutdown, draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.readyz {
		if !c.healthy.Load() {
			return false
		}
	}
	return true
}

// CheckStatus is the reported state of one check.
type CheckStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report is the health endpoint response body.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckStatus `json:"checks,omitempty"`
}

func report(checks []*check, extra map[string]CheckStatus) (Report, bool) {
	r := Report{Status: "ok", Checks: make(map[string]CheckStatus, len(checks)+len(extra))}
	ok := true
	for _, c := range checks {
		st := c.status()
		r.Checks[c.name] = st
		ok = ok && st.Healthy
	}
	for name, st := range extra {
		r.Checks[name] = st
		ok = ok && st.Healthy
	}
	if !ok {
		r.Status = "unavailable"
	}
	if len(r.Checks) == 0 {
		r.Checks = nil
	}
	return r, ok
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	r, ok := report(h.live, nil)
	h.mu.RUnlock()
	write(w, r, ok)
}

// ReadyEndpoint serves /readyz. While the service is not marked ready the
// report carries a synthetic "service" check.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	var extra map[string]CheckStatus
	if !h.ready.Load() {
		extra = map[string]CheckStatus{"service": {Error: "not ready"}}
	}
	h.mu.RLock()
	r, ok := report(h.readyz, extra)
	h.mu.RUnlock()
	write(w, r, ok)
}

func write(w http.ResponseWriter, r Report, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(r)
}
