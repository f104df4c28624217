package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/campus-eats/internal/domain/delivery"
)

var _ delivery.SlotRepository = (*SlotRepository)(nil)

// SlotRepository is an in-memory slot table seeded at construction. Counts
// reset when the process restarts.
type SlotRepository struct {
	mu    sync.Mutex
	slots []delivery.Slot
}

// NewSlotRepository creates a table holding a copy of initial, in order.
func NewSlotRepository(initial []delivery.Slot) *SlotRepository {
	return &SlotRepository{slots: slices.Clone(initial)}
}

func (r *SlotRepository) List(_ context.Context) ([]delivery.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.slots), nil
}

func (r *SlotRepository) Get(_ context.Context, id int) (*delivery.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return nil, delivery.ErrSlotNotFound
	}
	s := r.slots[i]
	return &s, nil
}

func (r *SlotRepository) Reserve(_ context.Context, id int) (*delivery.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return nil, delivery.ErrSlotNotFound
	}
	prior := r.slots[i]
	if prior.IsFull() {
		return nil, delivery.ErrSlotFull
	}
	r.slots[i].ParticipantCount++
	return &prior, nil
}

func (r *SlotRepository) index(id int) int {
	return slices.IndexFunc(r.slots, func(s delivery.Slot) bool { return s.ID == id })
}
