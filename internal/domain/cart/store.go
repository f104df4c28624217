// Package cart implements the per-identity shopping cart.
package cart

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// AnonymousIdentity names the slot used when nobody is signed in.
const AnonymousIdentity = "anonymous"

// Storage is durable key/value storage for serialized carts. Get returns a
// nil value and a nil error when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// SlotKey returns the storage key for the given identity id.
func SlotKey(identityID string) string {
	if identityID == "" {
		identityID = AnonymousIdentity
	}
	return "cart_" + identityID
}

// Config tunes Store behaviour.
type Config struct {
	RemovePolicy RemovePolicy
	Pricing      Pricing
	// AnonymousSlot overrides the storage key used while nobody is signed
	// in. Defaults to SlotKey("").
	AnonymousSlot string
}

// Store holds the cart of the active identity. Every mutation is written to
// the identity's slot before it returns; the in-memory cart stays
// authoritative when a write fails.
type Store struct {
	storage   Storage
	policy    RemovePolicy
	pricing   Pricing
	anonymous string

	mu       sync.Mutex
	identity string
	cart     Cart
}

// NewStore creates an empty Store bound to the anonymous slot. Call
// SwitchIdentity to load a persisted cart.
func NewStore(storage Storage, cfg Config) *Store {
	if cfg.RemovePolicy == "" {
		cfg.RemovePolicy = RemoveLine
	}
	if cfg.Pricing == (Pricing{}) {
		cfg.Pricing = DefaultPricing
	}
	if cfg.AnonymousSlot == "" {
		cfg.AnonymousSlot = SlotKey("")
	}
	return &Store{
		storage:   storage,
		policy:    cfg.RemovePolicy,
		pricing:   cfg.Pricing,
		anonymous: cfg.AnonymousSlot,
		cart:      Cart{Items: []Item{}},
	}
}

func (s *Store) slotKey() string {
	if s.identity == "" {
		return s.anonymous
	}
	return SlotKey(s.identity)
}

// Identity returns the id the store is currently keyed to. Empty means
// anonymous.
func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SwitchIdentity discards the in-memory cart and reloads it from the slot of
// identityID. A missing or malformed record loads as an empty cart.
func (s *Store) SwitchIdentity(ctx context.Context, identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = identityID
	s.cart = s.load(ctx, s.slotKey())
}

func (s *Store) load(ctx context.Context, key string) Cart {
	lg := zctx.From(ctx)

	data, err := s.storage.Get(ctx, key)
	if err != nil {
		lg.Warn("Load cart", zap.String("key", key), zap.Error(err))
		return Cart{Items: []Item{}}
	}
	if len(data) == 0 {
		return Cart{Items: []Item{}}
	}

	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		lg.Debug("Discarding malformed cart", zap.String("key", key), zap.Error(err))
		return Cart{Items: []Item{}}
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c
}

// persist writes the cart to the active slot. Must be called with s.mu held.
func (s *Store) persist(ctx context.Context) {
	key := s.slotKey()
	data, err := json.Marshal(s.cart)
	if err == nil {
		err = s.storage.Put(ctx, key, data)
	}
	if err != nil {
		zctx.From(ctx).Warn("Persist cart", zap.String("key", key), zap.Error(err))
	}
}

// AddItem merges quantity units of item into the cart. A quantity below 1
// adds a single unit and the merged line saturates at MaxQuantity. The
// item's own Quantity field is ignored.
func (s *Store) AddItem(ctx context.Context, item Item, quantity int) {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.cart.indexOf(item.ID); i >= 0 {
		s.cart.Items[i].Quantity = clampQuantity(clampQuantity(s.cart.Items[i].Quantity) + min(quantity, MaxQuantity))
	} else {
		line := item.clone()
		line.Quantity = clampQuantity(quantity)
		s.cart.Items = append(s.cart.Items, line)
	}
	s.persist(ctx)
}

// RemoveItem removes the line for itemID according to the configured policy.
// It reports whether anything changed; an unknown id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cart.indexOf(itemID)
	if i < 0 {
		return false
	}
	if s.policy == RemoveOne && s.cart.Items[i].Quantity > 1 {
		s.cart.Items[i].Quantity--
	} else {
		s.cart.Items = append(s.cart.Items[:i], s.cart.Items[i+1:]...)
	}
	s.persist(ctx)
	return true
}

// UpdateQuantity sets the quantity of itemID to exactly quantity, capped at
// MaxQuantity. A quantity of zero or less removes the whole line.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cart.indexOf(itemID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		s.cart.Items = append(s.cart.Items[:i], s.cart.Items[i+1:]...)
	} else {
		s.cart.Items[i].Quantity = clampQuantity(quantity)
	}
	s.persist(ctx)
	return true
}

// Clear empties the cart and drops the delivery info.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = Cart{Items: []Item{}}
	s.persist(ctx)
}

// SetDeliveryInfo replaces the delivery info. Nil clears it.
func (s *Store) SetDeliveryInfo(ctx context.Context, info *DeliveryInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info != nil {
		cp := *info
		info = &cp
	}
	s.cart.DeliveryInfo = info
	s.persist(ctx)
}

// Snapshot returns a deep copy of the current cart.
func (s *Store) Snapshot() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Total returns the live sum of unit price × quantity.
func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Total()
}

// Count returns the total number of units in the cart.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Count()
}

// DeliveryFee returns the direct-order delivery fee for the current total.
func (s *Store) DeliveryFee() int64 {
	return s.pricing.DeliveryFee(s.Total())
}

// TotalWithDelivery returns Total plus DeliveryFee.
func (s *Store) TotalWithDelivery() int64 {
	return s.pricing.TotalWithDelivery(s.Total())
}

// Pricing returns the delivery fee rule in effect.
func (s *Store) Pricing() Pricing {
	return s.pricing
}

// Validate checks the cart is ready for a direct order and returns a
// *ValidationError listing every problem found.
func (s *Store) Validate() error {
	c := s.Snapshot()

	var problems []string
	if c.IsEmpty() {
		problems = append(problems, ProblemEmpty)
	}
	switch info := c.DeliveryInfo; {
	case info == nil:
		problems = append(problems, ProblemDeliveryInfoMissing)
	default:
		if info.Address == "" {
			problems = append(problems, ProblemAddressMissing)
		}
		if info.PhoneNumber == "" {
			problems = append(problems, ProblemPhoneMissing)
		}
	}
	for _, it := range c.Items {
		if !it.Available {
			problems = append(problems, it.Name+" is no longer available")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
