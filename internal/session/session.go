// Package session binds a device to its signed-in identity and cart.
//
// A device owns one Session. Work for a session is serialized with Do, so a
// single device observes its cart operations in order while different
// devices proceed in parallel.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/internal/domain/cart"
	"github.com/xenking/campus-eats/internal/domain/delivery"
	"github.com/xenking/campus-eats/internal/domain/identity"
	"github.com/xenking/campus-eats/internal/domain/order"
)

// Storage is the durable key/value store shared by carts and current-user
// records.
type Storage interface {
	cart.Storage
	Delete(ctx context.Context, key string) error
}

// UserKey returns the storage key of the signed-in identity of a device.
func UserKey(deviceID string) string {
	return "currentUser_" + deviceID
}

// AnonymousCartKey returns the cart slot a device uses while signed out.
// Anonymous carts are per device so devices never share one.
func AnonymousCartKey(deviceID string) string {
	return cart.SlotKey("") + "_" + deviceID
}

// Config holds Manager dependencies.
type Config struct {
	Storage       Storage
	Provider      identity.Provider
	Cart          cart.Config
	Orders        *order.Service
	Allocator     *delivery.Allocator
	MeterProvider metric.MeterProvider
}

// Manager creates and caches sessions per device.
type Manager struct {
	storage   Storage
	provider  identity.Provider
	cartCfg   cart.Config
	orders    *order.Service
	allocator *delivery.Allocator
	mutations metric.Int64Counter
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = noop.NewMeterProvider()
	}
	mutations, err := cfg.MeterProvider.Meter("github.com/xenking/campus-eats/internal/session").
		Int64Counter("cart.mutations", metric.WithDescription("Cart mutations by operation"))
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	return &Manager{
		storage:   cfg.Storage,
		provider:  cfg.Provider,
		cartCfg:   cfg.Cart,
		orders:    cfg.Orders,
		allocator: cfg.Allocator,
		mutations: mutations,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}, nil
}

// Get returns the session of deviceID, restoring it from storage on first
// use.
func (m *Manager) Get(ctx context.Context, deviceID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[deviceID]; ok {
		s.touch(m.now())
		return s
	}

	cfg := m.cartCfg
	cfg.AnonymousSlot = AnonymousCartKey(deviceID)
	s := &Session{
		m:        m,
		deviceID: deviceID,
		user:     m.loadUser(ctx, deviceID),
		cart:     cart.NewStore(m.storage, cfg),
	}
	s.touch(m.now())
	if s.user != nil {
		s.cart.SwitchIdentity(ctx, s.user.ID)
	} else {
		s.cart.SwitchIdentity(ctx, "")
	}
	m.sessions[deviceID] = s
	return s
}

// Prune drops sessions idle for longer than idle and returns how many were
// removed. Sessions running work in Do are kept. State of pruned sessions
// stays in storage and is restored by the next Get.
func (m *Manager) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	var n int
	for id, s := range m.sessions {
		if !s.lastSeen().Before(cutoff) {
			continue
		}
		if !s.work.TryLock() {
			continue
		}
		delete(m.sessions, id)
		s.work.Unlock()
		n++
	}
	return n
}

// RunPruner calls Prune every interval until ctx is done.
func (m *Manager) RunPruner(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(idle); n > 0 {
				zctx.From(ctx).Debug("Pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}

func (m *Manager) loadUser(ctx context.Context, deviceID string) *identity.Identity {
	lg := zctx.From(ctx)

	data, err := m.storage.Get(ctx, UserKey(deviceID))
	if err != nil {
		lg.Warn("Load current user", zap.String("device_id", deviceID), zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var u identity.Identity
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
		lg.Debug("Discarding malformed current user", zap.String("device_id", deviceID), zap.Error(err))
		return nil
	}
	return &u
}

// Session is the state of one device. Methods other than Do, DeviceID and
// User must be called from inside Do.
type Session struct {
	m        *Manager
	deviceID string

	work sync.Mutex

	mu   sync.Mutex
	seen time.Time
	user *identity.Identity

	cart *cart.Store
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.seen = t
	s.mu.Unlock()
}

func (s *Session) lastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Do runs fn with exclusive access to the session. The session counts as
// active for the whole call.
func (s *Session) Do(fn func() error) error {
	s.work.Lock()
	defer s.work.Unlock()
	s.touch(s.m.now())
	defer func() { s.touch(s.m.now()) }()
	return fn()
}

// DeviceID returns the device the session belongs to.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// User returns a copy of the signed-in identity, or nil when anonymous.
func (s *Session) User() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Cart returns the cart store of the active identity. Use the Session
// mutators to change it so mutations are counted.
func (s *Session) Cart() *cart.Store {
	return s.cart
}

// Login authenticates creds and switches the cart to the identity's slot.
func (s *Session) Login(ctx context.Context, creds identity.Credentials) (*identity.Identity, error) {
	u, err := s.m.provider.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if err := s.signIn(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Signup registers reg and switches the cart to the new identity's slot.
func (s *Session) Signup(ctx context.Context, reg identity.Registration) (*identity.Identity, error) {
	u, err := s.m.provider.Signup(ctx, reg)
	if err != nil {
		return nil, err
	}
	if err := s.signIn(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Session) signIn(ctx context.Context, u *identity.Identity) error {
	data, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshal current user")
	}
	if err := s.m.storage.Put(ctx, UserKey(s.deviceID), data); err != nil {
		zctx.From(ctx).Warn("Persist current user", zap.String("device_id", s.deviceID), zap.Error(err))
	}

	s.mu.Lock()
	s.user = u
	s.mu.Unlock()

	s.cart.SwitchIdentity(ctx, u.ID)
	zctx.From(ctx).Info("Signed in", zap.String("device_id", s.deviceID), zap.String("user_id", u.ID))
	return nil
}

// Logout signs the device out and switches the cart back to the anonymous
// slot. Signing out an anonymous session is a no-op.
func (s *Session) Logout(ctx context.Context) error {
	u := s.User()
	if u == nil {
		return nil
	}
	if err := s.m.provider.Logout(ctx, u); err != nil {
		return err
	}
	if err := s.m.storage.Delete(ctx, UserKey(s.deviceID)); err != nil {
		zctx.From(ctx).Warn("Remove current user", zap.String("device_id", s.deviceID), zap.Error(err))
	}

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	s.cart.SwitchIdentity(ctx, "")
	return nil
}

func (s *Session) count(ctx context.Context, op string) {
	s.m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// AddItem adds quantity units of item to the cart.
func (s *Session) AddItem(ctx context.Context, item cart.Item, quantity int) {
	s.cart.AddItem(ctx, item, quantity)
	s.count(ctx, "add")
}

// RemoveItem removes itemID from the cart and reports whether it was there.
func (s *Session) RemoveItem(ctx context.Context, itemID string) bool {
	ok := s.cart.RemoveItem(ctx, itemID)
	if ok {
		s.count(ctx, "remove")
	}
	return ok
}

// UpdateQuantity sets the quantity of itemID and reports whether it was there.
func (s *Session) UpdateQuantity(ctx context.Context, itemID string, quantity int) bool {
	ok := s.cart.UpdateQuantity(ctx, itemID, quantity)
	if ok {
		s.count(ctx, "update")
	}
	return ok
}

// ClearCart empties the cart.
func (s *Session) ClearCart(ctx context.Context) {
	s.cart.Clear(ctx)
	s.count(ctx, "clear")
}

// SetDeliveryInfo replaces the cart's delivery info.
func (s *Session) SetDeliveryInfo(ctx context.Context, info *cart.DeliveryInfo) {
	s.cart.SetDeliveryInfo(ctx, info)
	s.count(ctx, "delivery_info")
}

// Checkout places a direct order for the cart and clears it on success.
func (s *Session) Checkout(ctx context.Context, typ order.Type) (*order.Order, error) {
	o, err := s.m.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID: s.userID(),
		Type:   typ,
		Cart:   s.cart.Snapshot(),
	})
	if err != nil {
		return nil, err
	}
	s.ClearCart(ctx)
	return o, nil
}

// Orders lists the direct orders of the signed-in identity.
func (s *Session) Orders(ctx context.Context) ([]order.Order, error) {
	return s.m.orders.ListOrders(ctx, s.userID())
}

// Order returns one direct order of the signed-in identity.
func (s *Session) Order(ctx context.Context, orderID string) (*order.Order, error) {
	return s.m.orders.GetOrder(ctx, s.userID(), orderID)
}

// AdvanceOrder moves an order of the signed-in identity to status to.
func (s *Session) AdvanceOrder(ctx context.Context, orderID string, to order.Status) (*order.Order, error) {
	return s.m.orders.UpdateStatus(ctx, s.userID(), orderID, to)
}

func (s *Session) userID() string {
	if u := s.User(); u != nil {
		return u.ID
	}
	return ""
}

// JoinGroupDelivery joins slotID with a snapshot of the current cart. The
// cart itself is left as is.
func (s *Session) JoinGroupDelivery(ctx context.Context, slotID int, student delivery.StudentInfo) (*delivery.Order, error) {
	return s.m.allocator.Join(ctx, delivery.JoinRequest{
		DeviceID: s.deviceID,
		SlotID:   slotID,
		Student:  student,
		Cart:     s.cart.Snapshot(),
	})
}

// GroupDeliveries lists the join records made from this device.
func (s *Session) GroupDeliveries(ctx context.Context) []delivery.Order {
	return s.m.allocator.ListMyDeliveries(ctx, s.deviceID)
}
