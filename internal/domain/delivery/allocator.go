// Package delivery implements group delivery slots with split fees.
package delivery

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/campus-eats/internal/domain/cart"
)

const instrumentationName = "github.com/xenking/campus-eats/internal/domain/delivery"

// RecordStorage is durable key/value storage for join records. Get returns a
// nil value and a nil error when the key is absent.
type RecordStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// RecordKey returns the storage key of the join-record list for a device.
func RecordKey(deviceID string) string {
	if deviceID == "" {
		return "joinedGroupDeliveries"
	}
	return "joinedGroupDeliveries_" + deviceID
}

// JoinRequest holds the input for joining a slot.
type JoinRequest struct {
	DeviceID string
	SlotID   int
	Student  StudentInfo
	Cart     cart.Cart
}

// Telemetry carries optional providers. Nil providers are no-ops.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Allocator quotes split fees, enforces slot capacity and records joins.
type Allocator struct {
	slots   SlotRepository
	records RecordStorage
	now     func() time.Time

	tracer     trace.Tracer
	joins      metric.Int64Counter
	rejections metric.Int64Counter

	// recordsMu serializes read-modify-write of join-record lists.
	recordsMu sync.Mutex
}

// NewAllocator creates an Allocator over the given slot table and record
// storage.
func NewAllocator(slots SlotRepository, records RecordStorage, t Telemetry) (*Allocator, error) {
	if t.TracerProvider == nil {
		t.TracerProvider = tracenoop.NewTracerProvider()
	}
	if t.MeterProvider == nil {
		t.MeterProvider = metricnoop.NewMeterProvider()
	}
	meter := t.MeterProvider.Meter(instrumentationName)

	joins, err := meter.Int64Counter("delivery.joins",
		metric.WithDescription("Successful group delivery joins"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create joins counter")
	}
	rejections, err := meter.Int64Counter("delivery.join_rejections",
		metric.WithDescription("Rejected group delivery joins"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejections counter")
	}

	return &Allocator{
		slots:      slots,
		records:    records,
		now:        time.Now,
		tracer:     t.TracerProvider.Tracer(instrumentationName),
		joins:      joins,
		rejections: rejections,
	}, nil
}

// Slots returns every slot with its current quote.
func (a *Allocator) Slots(ctx context.Context) ([]Quote, error) {
	slots, err := a.slots.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list slots")
	}
	quotes := make([]Quote, len(slots))
	for i, s := range slots {
		quotes[i] = NewQuote(s)
	}
	return quotes, nil
}

// Quote returns the current quote for one slot.
func (a *Allocator) Quote(ctx context.Context, slotID int) (*Quote, error) {
	s, err := a.slots.Get(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, &SlotNotFoundError{SlotID: slotID}
		}
		return nil, errors.Wrap(err, "get slot")
	}
	q := NewQuote(*s)
	return &q, nil
}

// Join validates req, reserves a place in the slot and records the order.
// Validation failures are returned as *ValidationError and leave the slot
// untouched. Joins are not idempotent: every call takes a new place.
func (a *Allocator) Join(ctx context.Context, req JoinRequest) (*Order, error) {
	ctx, span := a.tracer.Start(ctx, "delivery.Join",
		trace.WithAttributes(attribute.Int("delivery.slot_id", req.SlotID)),
	)
	defer span.End()

	o, err := a.join(ctx, req)
	if err != nil {
		a.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectionReason(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	a.joins.Add(ctx, 1, metric.WithAttributes(attribute.Int("delivery.slot_id", o.SlotID)))
	return o, nil
}

func (a *Allocator) join(ctx context.Context, req JoinRequest) (*Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "generate order id")
	}

	prior, err := a.slots.Reserve(ctx, req.SlotID)
	switch {
	case errors.Is(err, ErrSlotFull):
		return nil, &ValidationError{Field: "slotId", Err: ErrSlotFull}
	case errors.Is(err, ErrSlotNotFound):
		return nil, &SlotNotFoundError{SlotID: req.SlotID}
	case err != nil:
		return nil, errors.Wrap(err, "reserve slot")
	}

	snapshot := req.Cart.Clone()
	splitFee := QuoteSplitFee(*prior)
	orderTotal := snapshot.Total()

	o := &Order{
		ID:         id.String(),
		SlotID:     prior.ID,
		TimeWindow: prior.TimeWindow,
		Student:    req.Student,
		Items:      snapshot.Items,
		OrderTotal: orderTotal,
		BaseFee:    prior.BaseFee,
		SplitFee:   splitFee,
		TotalCost:  cart.AddAmounts(orderTotal, splitFee),
		JoinedAt:   a.now(),
		Status:     StatusPending,
	}

	a.appendRecord(ctx, req.DeviceID, o)

	zctx.From(ctx).Info("Joined group delivery",
		zap.String("order_id", o.ID),
		zap.Int("slot_id", o.SlotID),
		zap.Int64("split_fee", o.SplitFee),
	)
	return o, nil
}

func validate(req JoinRequest) error {
	if req.SlotID == 0 {
		return &ValidationError{Field: "slotId", Err: ErrSlotNotSelected}
	}
	required := []struct {
		field string
		value string
	}{
		{"name", req.Student.Name},
		{"studentId", req.Student.StudentID},
		{"phone", req.Student.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Err: ErrFieldRequired}
		}
	}
	return nil
}

func rejectionReason(err error) string {
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrSlotFull):
		return "full"
	case errors.Is(err, ErrSlotNotFound):
		return "not_found"
	case errors.As(err, &vErr):
		return "invalid_" + vErr.Field
	default:
		return "error"
	}
}

// ListMyDeliveries returns the join records of a device in insertion order.
// A missing or unreadable list is reported as empty.
func (a *Allocator) ListMyDeliveries(ctx context.Context, deviceID string) []Order {
	a.recordsMu.Lock()
	defer a.recordsMu.Unlock()

	return a.loadRecords(ctx, RecordKey(deviceID))
}

// loadRecords must be called with recordsMu held.
func (a *Allocator) loadRecords(ctx context.Context, key string) []Order {
	lg := zctx.From(ctx)

	data, err := a.records.Get(ctx, key)
	if err != nil {
		lg.Warn("Load join records", zap.String("key", key), zap.Error(err))
		return []Order{}
	}
	if len(data) == 0 {
		return []Order{}
	}

	var orders []Order
	if err := json.Unmarshal(data, &orders); err != nil {
		lg.Debug("Discarding malformed join records", zap.String("key", key), zap.Error(err))
		return []Order{}
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders
}

// appendRecord overwrites the device list with o appended. Write failures are
// logged; the returned order stays valid.
func (a *Allocator) appendRecord(ctx context.Context, deviceID string, o *Order) {
	a.recordsMu.Lock()
	defer a.recordsMu.Unlock()

	key := RecordKey(deviceID)
	orders := append(a.loadRecords(ctx, key), *o)

	data, err := json.Marshal(orders)
	if err == nil {
		err = a.records.Put(ctx, key, data)
	}
	if err != nil {
		zctx.From(ctx).Warn("Persist join records", zap.String("key", key), zap.Error(err))
	}
}
