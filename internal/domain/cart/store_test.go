package cart

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockStorage struct {
	mu     sync.Mutex
	data   map[string][]byte
	puts   int
	getErr error
	putErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{data: make(map[string][]byte)}
}

func (m *mockStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[key], nil
}

func (m *mockStorage) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	return nil
}

func (m *mockStorage) stored(t *testing.T, key string) Cart {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var c Cart
	require.NoError(t, json.Unmarshal(m.data[key], &c))
	return c
}

// --- Helpers ---

func rolex() Item {
	return Item{ID: "f1", Name: "Rolex", UnitPrice: 6000, Available: true}
}

func chips() Item {
	return Item{ID: "f2", Name: "Chips", UnitPrice: 3500, Available: true}
}

func newTestStore(t *testing.T, storage Storage, policy RemovePolicy) *Store {
	t.Helper()
	s := NewStore(storage, Config{RemovePolicy: policy})
	s.SwitchIdentity(context.Background(), "")
	return s
}

// --- Tests ---

func TestAddItem_MergesByID(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := newTestStore(t, storage, RemoveLine)

	s.AddItem(ctx, rolex(), 1)
	s.AddItem(ctx, rolex(), 1)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, int64(12000), s.Total())
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, c, storage.stored(t, "cart_anonymous"))
}

func TestAddItem_QuantitiesAccumulate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)

	requested := []int{3, 1, 4, 2}
	for _, q := range requested {
		s.AddItem(ctx, chips(), q)
	}
	s.AddItem(ctx, rolex(), 2)

	c := s.Snapshot()
	require.Len(t, c.Items, 2)
	assert.Equal(t, 10, c.Items[0].Quantity)
	assert.Equal(t, int64(10*3500+2*6000), s.Total())
	assert.Equal(t, 12, s.Count())
}

func TestAddItem_NonPositiveQuantityAddsOne(t *testing.T) {
	s := newTestStore(t, newMockStorage(), RemoveLine)

	s.AddItem(context.Background(), rolex(), 0)

	assert.Equal(t, 1, s.Count())
}

func TestAddItem_QuantitySaturates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)

	s.AddItem(ctx, rolex(), math.MaxInt64/6000+1)
	s.AddItem(ctx, rolex(), math.MaxInt)

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, MaxQuantity, c.Items[0].Quantity)
	assert.Equal(t, MaxQuantity, s.Count())
	assert.Equal(t, int64(6000*MaxQuantity), s.Total())
}

func TestUpdateQuantity_Saturates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)
	s.AddItem(ctx, rolex(), 1)

	require.True(t, s.UpdateQuantity(ctx, "f1", math.MaxInt))
	assert.Equal(t, MaxQuantity, s.Count())
	assert.Positive(t, s.Total())
}

func TestTotal_SaturatesOnHugePrices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)

	s.AddItem(ctx, Item{ID: "a", Name: "A", UnitPrice: math.MaxInt64 / 2}, 3)
	s.AddItem(ctx, Item{ID: "b", Name: "B", UnitPrice: math.MaxInt64 / 2}, 1)

	assert.Equal(t, int64(math.MaxInt64), s.Total())
	assert.Equal(t, int64(math.MaxInt64), s.TotalWithDelivery())
	assert.Equal(t, 4, s.Count())
}

func TestAddAmounts(t *testing.T) {
	assert.Equal(t, int64(0), AddAmounts())
	assert.Equal(t, int64(17000), AddAmounts(12000, 5000))
	assert.Equal(t, int64(math.MaxInt64), AddAmounts(math.MaxInt64, 1))
	assert.Equal(t, int64(math.MaxInt64), AddAmounts(math.MaxInt64-1, 1))
}

func TestAddItem_PreservesAttributes(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := newTestStore(t, storage, RemoveLine)

	item := rolex()
	item.Attributes = map[string]json.RawMessage{"rating": json.RawMessage(`4.5`)}
	s.AddItem(ctx, item, 1)

	item.Attributes["rating"][0] = '1'

	c := s.Snapshot()
	assert.JSONEq(t, `4.5`, string(c.Items[0].Attributes["rating"]))
	assert.JSONEq(t, `4.5`, string(storage.stored(t, "cart_anonymous").Items[0].Attributes["rating"]))
}

func TestRemoveItem_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := newTestStore(t, storage, RemoveLine)
	s.AddItem(ctx, rolex(), 2)
	before := s.Snapshot()
	puts := storage.puts

	changed := s.RemoveItem(ctx, "missing")

	assert.False(t, changed)
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, int64(12000), s.Total())
	assert.Equal(t, puts, storage.puts)
}

func TestRemoveItem_WholeLine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)
	s.AddItem(ctx, rolex(), 3)
	s.AddItem(ctx, chips(), 1)

	assert.True(t, s.RemoveItem(ctx, "f1"))

	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, "f2", c.Items[0].ID)
}

func TestRemoveItem_Decrement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveOne)
	s.AddItem(ctx, rolex(), 2)

	require.True(t, s.RemoveItem(ctx, "f1"))
	assert.Equal(t, 1, s.Count())

	require.True(t, s.RemoveItem(ctx, "f1"))
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)
	s.AddItem(ctx, rolex(), 5)
	s.AddItem(ctx, chips(), 1)

	require.True(t, s.UpdateQuantity(ctx, "f1", 2))
	assert.Equal(t, 2, s.Snapshot().Items[0].Quantity)

	require.True(t, s.UpdateQuantity(ctx, "f1", 0))
	c := s.Snapshot()
	require.Len(t, c.Items, 1)
	assert.Equal(t, "f2", c.Items[0].ID)

	require.True(t, s.UpdateQuantity(ctx, "f2", -3))
	assert.True(t, s.Snapshot().IsEmpty())

	assert.False(t, s.UpdateQuantity(ctx, "f2", 4))
}

func TestClear_DropsDeliveryInfo(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := newTestStore(t, storage, RemoveLine)
	s.AddItem(ctx, rolex(), 1)
	s.SetDeliveryInfo(ctx, &DeliveryInfo{Address: "Hall 4", PhoneNumber: "0700"})

	s.Clear(ctx)

	c := s.Snapshot()
	assert.True(t, c.IsEmpty())
	assert.Nil(t, c.DeliveryInfo)
	assert.Nil(t, storage.stored(t, "cart_anonymous").DeliveryInfo)
}

func TestSwitchIdentity_IsolatesCarts(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := newTestStore(t, storage, RemoveLine)

	s.SwitchIdentity(ctx, "alice")
	s.AddItem(ctx, rolex(), 2)
	s.SetDeliveryInfo(ctx, &DeliveryInfo{Address: "Hall 4", PhoneNumber: "0700"})
	aliceCart := s.Snapshot()

	s.SwitchIdentity(ctx, "bob")
	assert.True(t, s.Snapshot().IsEmpty())
	assert.Nil(t, s.Snapshot().DeliveryInfo)
	s.AddItem(ctx, chips(), 1)

	s.SwitchIdentity(ctx, "alice")
	assert.Equal(t, aliceCart, s.Snapshot())
	assert.Equal(t, "alice", s.Identity())

	s.SwitchIdentity(ctx, "")
	assert.True(t, s.Snapshot().IsEmpty())
}

func TestSwitchIdentity_MalformedRecordLoadsEmpty(t *testing.T) {
	storage := newMockStorage()
	storage.data["cart_alice"] = []byte(`{"items": [oops`)
	s := newTestStore(t, storage, RemoveLine)

	s.SwitchIdentity(context.Background(), "alice")

	assert.True(t, s.Snapshot().IsEmpty())
	assert.Equal(t, int64(0), s.Total())
}

func TestSwitchIdentity_ReadErrorLoadsEmpty(t *testing.T) {
	storage := newMockStorage()
	storage.getErr = errors.New("disk gone")
	s := newTestStore(t, storage, RemoveLine)

	s.SwitchIdentity(context.Background(), "alice")

	assert.True(t, s.Snapshot().IsEmpty())
}

func TestPersist_WriteFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	storage.putErr = errors.New("quota exceeded")
	s := newTestStore(t, storage, RemoveLine)

	s.AddItem(ctx, rolex(), 3)

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 1, storage.puts)
	assert.Empty(t, storage.data)
}

func TestPersist_RoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := newTestStore(t, storage, RemoveLine)
	s.AddItem(ctx, rolex(), 2)
	s.AddItem(ctx, chips(), 1)
	s.SetDeliveryInfo(ctx, &DeliveryInfo{Address: "Mitchell Hall", PhoneNumber: "0772", Instructions: "gate B"})

	restored := newTestStore(t, storage, RemoveLine)

	assert.Equal(t, s.Snapshot(), restored.Snapshot())
	assert.Equal(t, s.Total(), restored.Total())
}

func TestDeliveryFee(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMockStorage(), Config{Pricing: Pricing{FreeDeliveryThreshold: 20000, FlatDeliveryFee: 1500}})

	s.AddItem(ctx, rolex(), 1)
	assert.Equal(t, int64(1500), s.DeliveryFee())
	assert.Equal(t, int64(7500), s.TotalWithDelivery())

	s.UpdateQuantity(ctx, "f1", 4)
	assert.Equal(t, int64(0), s.DeliveryFee())
	assert.Equal(t, int64(24000), s.TotalWithDelivery())
}

func TestValidate_EmptyCart(t *testing.T) {
	s := newTestStore(t, newMockStorage(), RemoveLine)

	err := s.Validate()

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{ProblemEmpty, ProblemDeliveryInfoMissing}, vErr.Problems)
}

func TestValidate_MissingDeliveryFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)
	s.AddItem(ctx, rolex(), 1)
	s.SetDeliveryInfo(ctx, &DeliveryInfo{})

	err := s.Validate()

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{ProblemAddressMissing, ProblemPhoneMissing}, vErr.Problems)
}

func TestValidate_UnavailableItem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)
	sold := chips()
	sold.Available = false
	s.AddItem(ctx, sold, 1)
	s.SetDeliveryInfo(ctx, &DeliveryInfo{Address: "Hall 4", PhoneNumber: "0700"})

	err := s.Validate()

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"Chips is no longer available"}, vErr.Problems)
}

func TestValidate_Ready(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, newMockStorage(), RemoveLine)
	s.AddItem(ctx, rolex(), 1)
	s.SetDeliveryInfo(ctx, &DeliveryInfo{Address: "Hall 4", PhoneNumber: "0700"})

	assert.NoError(t, s.Validate())
}

func TestParseRemovePolicy(t *testing.T) {
	p, err := ParseRemovePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemoveLine, p)

	p, err = ParseRemovePolicy("Decrement")
	require.NoError(t, err)
	assert.Equal(t, RemoveOne, p)

	_, err = ParseRemovePolicy("halve")
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestStore_AnonymousSlotOverride(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	s := NewStore(storage, Config{AnonymousSlot: "cart_anonymous_dev-1"})
	s.SwitchIdentity(ctx, "")

	s.AddItem(ctx, rolex(), 1)
	assert.Equal(t, 1, storage.stored(t, "cart_anonymous_dev-1").Count())

	s.SwitchIdentity(ctx, "alice")
	s.AddItem(ctx, chips(), 2)
	assert.Equal(t, 2, storage.stored(t, "cart_alice").Count())
}
