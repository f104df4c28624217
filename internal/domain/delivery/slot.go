package delivery

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// LowParticipationThreshold is the participant count below which an open slot
// is flagged as still waiting for students. It is advisory only.
const LowParticipationThreshold = 3

var (
	// ErrSlotNotFound is returned when a slot id is unknown.
	ErrSlotNotFound = errors.New("time slot not found")
	// ErrSlotFull is returned when a slot has no capacity left.
	ErrSlotFull = errors.New("this time slot is full")
)

// SlotNotFoundError identifies the unknown slot.
type SlotNotFoundError struct {
	SlotID int
}

func (e *SlotNotFoundError) Error() string {
	return fmt.Sprintf("time slot %d not found", e.SlotID)
}

// Is makes errors.Is(err, ErrSlotNotFound) hold.
func (e *SlotNotFoundError) Is(target error) bool {
	return target == ErrSlotNotFound
}

// State is the capacity state of a slot.
type State string

const (
	StateOpen State = "OPEN"
	StateFull State = "FULL"
)

// Slot is a delivery time window shared by several students.
// 0 ≤ ParticipantCount ≤ MaxParticipants.
type Slot struct {
	ID               int    `json:"id"`
	TimeWindow       string `json:"timeWindow"`
	ParticipantCount int    `json:"participantCount"`
	MaxParticipants  int    `json:"maxParticipants"`
	BaseFee          int64  `json:"baseFee"`
}

// State reports whether the slot can still be joined.
func (s Slot) State() State {
	if s.ParticipantCount >= s.MaxParticipants {
		return StateFull
	}
	return StateOpen
}

// IsFull reports whether the slot is at capacity.
func (s Slot) IsFull() bool {
	return s.State() == StateFull
}

// LowParticipation reports whether the slot is waiting for more students.
func (s Slot) LowParticipation() bool {
	return s.ParticipantCount < LowParticipationThreshold
}

// QuoteSplitFee returns the fee a student pays for joining s now: the base fee
// divided among the current participants plus the joiner, rounded up so the
// collected sum never falls short of BaseFee.
func QuoteSplitFee(s Slot) int64 {
	n := int64(s.ParticipantCount) + 1
	return (s.BaseFee + n - 1) / n
}

// Quote is a slot annotated with what joining it costs right now.
type Quote struct {
	Slot
	State    State `json:"state"`
	Low      bool  `json:"low"`
	SplitFee int64 `json:"splitFee"`
	Savings  int64 `json:"savings"`
}

// NewQuote computes the quote for s.
func NewQuote(s Slot) Quote {
	fee := QuoteSplitFee(s)
	return Quote{
		Slot:     s,
		State:    s.State(),
		Low:      s.State() == StateOpen && s.LowParticipation(),
		SplitFee: fee,
		Savings:  s.BaseFee - fee,
	}
}

// SlotRepository holds the slot table.
type SlotRepository interface {
	List(ctx context.Context) ([]Slot, error)
	Get(ctx context.Context, id int) (*Slot, error)
	// Reserve atomically adds one participant to slot id and returns the slot
	// as it was before the increment. It returns ErrSlotFull when the slot is
	// at capacity and ErrSlotNotFound when id is unknown.
	Reserve(ctx context.Context, id int) (*Slot, error)
}

// DefaultSlots returns the standard evening and lunch windows.
func DefaultSlots() []Slot {
	return []Slot{
		{ID: 1, TimeWindow: "12:00 PM - 12:30 PM", ParticipantCount: 3, MaxParticipants: 8, BaseFee: 5000},
		{ID: 2, TimeWindow: "1:00 PM - 1:30 PM", ParticipantCount: 6, MaxParticipants: 8, BaseFee: 5000},
		{ID: 3, TimeWindow: "6:00 PM - 6:30 PM", ParticipantCount: 2, MaxParticipants: 10, BaseFee: 6000},
		{ID: 4, TimeWindow: "7:00 PM - 7:30 PM", ParticipantCount: 8, MaxParticipants: 12, BaseFee: 6000},
		{ID: 5, TimeWindow: "8:00 PM - 8:30 PM", ParticipantCount: 1, MaxParticipants: 6, BaseFee: 4000},
	}
}
