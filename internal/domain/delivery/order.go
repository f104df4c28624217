package delivery

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/campus-eats/internal/domain/cart"
)

// Status is the lifecycle state of a group delivery order. Join records are
// never advanced past StatusPending.
type Status string

const StatusPending Status = "pending"

var (
	// ErrSlotNotSelected is returned when a join names no slot.
	ErrSlotNotSelected = errors.New("please select a delivery time slot")
	// ErrFieldRequired is returned when a required student field is empty.
	ErrFieldRequired = errors.New("field is required")
)

// ValidationError reports why a join was rejected. Field names the offending
// input: "slotId", "name", "studentId" or "phone".
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StudentInfo identifies the student joining a slot.
type StudentInfo struct {
	Name         string `json:"name"`
	StudentID    string `json:"studentId"`
	Phone        string `json:"phone"`
	DormLocation string `json:"dormLocation,omitempty"`
}

// Order is the immutable record of one join.
type Order struct {
	ID         string      `json:"id"`
	SlotID     int         `json:"slotId"`
	TimeWindow string      `json:"timeSlot"`
	Student    StudentInfo `json:"studentInfo"`
	Items      []cart.Item `json:"cart"`
	OrderTotal int64       `json:"orderTotal"`
	BaseFee    int64       `json:"baseFee"`
	SplitFee   int64       `json:"deliveryFee"` // serialized under the original record name
	TotalCost  int64       `json:"totalCost"`
	JoinedAt   time.Time   `json:"joinedAt"`
	Status     Status      `json:"status"`
}

// Savings is what the student saved compared with paying the full fee alone.
func (o Order) Savings() int64 {
	return o.BaseFee - o.SplitFee
}
