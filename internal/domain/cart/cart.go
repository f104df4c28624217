package cart

import (
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// Problems reported by Validate.
const (
	ProblemEmpty               = "Cart is empty"
	ProblemDeliveryInfoMissing = "Delivery information is required"
	ProblemAddressMissing      = "Delivery address is required"
	ProblemPhoneMissing        = "Phone number is required"
)

// MaxQuantity caps the quantity of a single line. Larger adds and updates
// saturate at it.
const MaxQuantity = 100_000

// ErrInvalidPolicy is returned by ParseRemovePolicy for unknown values.
var ErrInvalidPolicy = errors.New("invalid remove policy")

// Item is a single cart line. Quantity is always at least 1 while the line
// is in a cart.
type Item struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	UnitPrice int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Available bool   `json:"available"`
	// Attributes carries catalog fields the cart does not interpret.
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
}

// Subtotal returns UnitPrice × Quantity, saturating at math.MaxInt64.
func (i Item) Subtotal() int64 {
	if i.UnitPrice <= 0 || i.Quantity <= 0 {
		return 0
	}
	if i.UnitPrice > math.MaxInt64/int64(i.Quantity) {
		return math.MaxInt64
	}
	return i.UnitPrice * int64(i.Quantity)
}

// AddAmounts sums non-negative money amounts, saturating at math.MaxInt64.
func AddAmounts(amounts ...int64) int64 {
	var sum int64
	for _, a := range amounts {
		if a > math.MaxInt64-sum {
			return math.MaxInt64
		}
		sum += a
	}
	return sum
}

func clampQuantity(q int) int {
	return min(max(q, 0), MaxQuantity)
}

func (i Item) clone() Item {
	if i.Attributes != nil {
		attrs := make(map[string]json.RawMessage, len(i.Attributes))
		for k, v := range i.Attributes {
			attrs[k] = slices.Clone(v)
		}
		i.Attributes = attrs
	}
	return i
}

// DeliveryInfo is where a direct order should be delivered.
type DeliveryInfo struct {
	Address      string `json:"address"`
	PhoneNumber  string `json:"phoneNumber"`
	Instructions string `json:"instructions,omitempty"`
}

// Cart is the persisted form of a cart slot.
type Cart struct {
	Items        []Item        `json:"items"`
	DeliveryInfo *DeliveryInfo `json:"deliveryInfo"`
}

// Total returns the sum of line subtotals.
func (c Cart) Total() int64 {
	var total int64
	for _, it := range c.Items {
		total = AddAmounts(total, it.Subtotal())
	}
	return total
}

// Count returns the sum of quantities across lines.
func (c Cart) Count() int {
	var n int
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy of c.
func (c Cart) Clone() Cart {
	out := Cart{Items: make([]Item, len(c.Items))}
	for i, it := range c.Items {
		out.Items[i] = it.clone()
	}
	if c.DeliveryInfo != nil {
		info := *c.DeliveryInfo
		out.DeliveryInfo = &info
	}
	return out
}

func (c Cart) indexOf(id string) int {
	return slices.IndexFunc(c.Items, func(it Item) bool { return it.ID == id })
}

// ValidationError lists every reason a cart cannot be checked out.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid cart: " + strings.Join(e.Problems, "; ")
}

// RemovePolicy selects what RemoveItem does to a line.
type RemovePolicy string

const (
	// RemoveLine deletes the whole line regardless of quantity.
	RemoveLine RemovePolicy = "line"
	// RemoveOne decrements the quantity and deletes the line at zero.
	RemoveOne RemovePolicy = "decrement"
)

// ParseRemovePolicy parses a configured policy name. Empty means RemoveLine.
func ParseRemovePolicy(s string) (RemovePolicy, error) {
	switch RemovePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RemoveLine:
		return RemoveLine, nil
	case RemoveOne:
		return RemoveOne, nil
	default:
		return "", errors.Wrapf(ErrInvalidPolicy, "%q", s)
	}
}

// Pricing holds the delivery fee rule for direct orders.
type Pricing struct {
	// FreeDeliveryThreshold is the cart total at or above which delivery is free.
	FreeDeliveryThreshold int64
	// FlatDeliveryFee is charged below the threshold.
	FlatDeliveryFee int64
}

// DefaultPricing matches the storefront's free-over-threshold rule.
var DefaultPricing = Pricing{
	FreeDeliveryThreshold: 50000,
	FlatDeliveryFee:       5000,
}

// DeliveryFee returns the fee for a cart with the given total.
func (p Pricing) DeliveryFee(total int64) int64 {
	if total >= p.FreeDeliveryThreshold {
		return 0
	}
	return p.FlatDeliveryFee
}

// TotalWithDelivery returns total plus its delivery fee.
func (p Pricing) TotalWithDelivery(total int64) int64 {
	return AddAmounts(total, p.DeliveryFee(total))
}
