// Package catalog adapts menu feeds into items the cart can hold.
package catalog

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/campus-eats/internal/domain/cart"
)

// ErrNotFound is returned when a requested meal does not exist.
var ErrNotFound = errors.New("meal not found")

// DefaultPrice applies to feed records that carry no price.
var DefaultPrice = decimal.NewFromInt(2000)

// MaxPrice is the largest price a feed record may carry. Shifted by up to
// four minor-unit digits it still fits in an int64.
var MaxPrice = decimal.New(1, 12)

var maxUnitPrice = decimal.NewFromInt(math.MaxInt64)

// Meal is a menu entry normalized from a catalog feed.
type Meal struct {
	ID          string
	DisplayName string
	ImageURL    string
	Price       decimal.Decimal
	Available   bool
	Restaurant  string
	Category    string
	// Attributes holds feed fields without a dedicated field, as raw JSON.
	Attributes map[string]json.RawMessage
}

// UnitPrice converts Price to the smallest currency unit, rounding up.
// exponent is the number of minor-unit digits of the currency (0 for UGX,
// 2 for USD). The result is clamped to 0..math.MaxInt64.
func (m Meal) UnitPrice(exponent int32) int64 {
	p := m.Price.Shift(exponent).Ceil()
	switch {
	case p.IsNegative():
		return 0
	case p.GreaterThan(maxUnitPrice):
		return math.MaxInt64
	}
	return p.IntPart()
}

// LineItem returns the cart representation of m.
func (m Meal) LineItem(exponent int32) cart.Item {
	var attrs map[string]json.RawMessage
	if len(m.Attributes) > 0 || m.Restaurant != "" || m.Category != "" {
		attrs = make(map[string]json.RawMessage, len(m.Attributes)+2)
		for k, v := range m.Attributes {
			attrs[k] = v
		}
		if m.Restaurant != "" {
			attrs["restaurant"] = quote(m.Restaurant)
		}
		if m.Category != "" {
			attrs["category"] = quote(m.Category)
		}
	}
	return cart.Item{
		ID:         m.ID,
		Name:       m.DisplayName,
		ImageURL:   m.ImageURL,
		UnitPrice:  m.UnitPrice(exponent),
		Available:  m.Available,
		Attributes: attrs,
	}
}

// WithImageBase prefixes a relative ImageURL with base.
func (m Meal) WithImageBase(base string) Meal {
	if base == "" || m.ImageURL == "" || strings.Contains(m.ImageURL, "://") {
		return m
	}
	m.ImageURL = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(m.ImageURL, "/")
	return m
}

// Description returns the feed's description text, if any.
func (m Meal) Description() string {
	for _, key := range []string{"description", "strInstructions"} {
		var v string
		if raw, ok := m.Attributes[key]; ok && json.Unmarshal(raw, &v) == nil {
			return v
		}
	}
	return ""
}

// Matches reports whether query occurs, ignoring case, in the name,
// description, category or restaurant of m. A blank query matches
// everything.
func (m Meal) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range []string{m.DisplayName, m.Description(), m.Category, m.Restaurant} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Repository defines read operations for the meal catalog.
type Repository interface {
	List(ctx context.Context) ([]Meal, error)
	GetByID(ctx context.Context, id string) (*Meal, error)
}

// Writer stores meals, replacing any with the same id.
type Writer interface {
	Upsert(ctx context.Context, meals []Meal) error
}
