package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/campus-eats/internal/domain/delivery"
)

var _ delivery.SlotRepository = (*SlotRepository)(nil)

// SlotRepository keeps the delivery slot table in PostgreSQL so participant
// counts survive restarts.
type SlotRepository struct {
	pool *pgxpool.Pool
}

// NewSlotRepository returns a SlotRepository that uses the given pool.
func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

const slotColumns = `id, time_window, participant_count, max_participants, base_fee`

func scanSlot(row pgx.Row) (delivery.Slot, error) {
	var s delivery.Slot
	err := row.Scan(&s.ID, &s.TimeWindow, &s.ParticipantCount, &s.MaxParticipants, &s.BaseFee)
	return s, err
}

// List returns all slots ordered by id.
func (r *SlotRepository) List(ctx context.Context) ([]delivery.Slot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+slotColumns+` FROM delivery_slots ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list slots")
	}
	slots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (delivery.Slot, error) {
		return scanSlot(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan slots")
	}
	return slots, nil
}

// Get returns one slot or delivery.ErrSlotNotFound.
func (r *SlotRepository) Get(ctx context.Context, id int) (*delivery.Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM delivery_slots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, delivery.ErrSlotNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get slot %d", id)
	}
	return &s, nil
}

// Reserve increments participant_count only while below capacity, so
// concurrent reservations never overfill a slot.
func (r *SlotRepository) Reserve(ctx context.Context, id int) (*delivery.Slot, error) {
	s, err := scanSlot(r.pool.QueryRow(ctx, `
		UPDATE delivery_slots
		SET participant_count = participant_count + 1
		WHERE id = $1 AND participant_count < max_participants
		RETURNING id, time_window, participant_count - 1, max_participants, base_fee`,
		id,
	))
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(err, "reserve slot %d", id)
	}

	// Nothing updated: the slot is either full or missing.
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, delivery.ErrSlotFull
}

// EnsureSlots inserts slots that do not exist yet. Existing rows, including
// their participant counts, are left alone.
func (r *SlotRepository) EnsureSlots(ctx context.Context, slots []delivery.Slot) error {
	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO delivery_slots (`+slotColumns+`)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			s.ID, s.TimeWindow, s.ParticipantCount, s.MaxParticipants, s.BaseFee,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "ensure slots")
	}
	return nil
}

// UpsertSlots writes slots, resetting participant counts to the given values.
func (r *SlotRepository) UpsertSlots(ctx context.Context, slots []delivery.Slot) error {
	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO delivery_slots (`+slotColumns+`)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				time_window = EXCLUDED.time_window,
				participant_count = EXCLUDED.participant_count,
				max_participants = EXCLUDED.max_participants,
				base_fee = EXCLUDED.base_fee`,
			s.ID, s.TimeWindow, s.ParticipantCount, s.MaxParticipants, s.BaseFee,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert slots")
	}
	return nil
}
