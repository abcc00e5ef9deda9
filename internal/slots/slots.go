package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/example/land-scheduler/internal/db"
)

// Slot lifecycle states as exposed to readers. The durable columns are
// is_processed plus the claim token; the state is derived.
const (
	StateOpen      = "OPEN"
	StateDue       = "DUE"
	StateProcessed = "PROCESSED"
)

type Slot struct {
	ID          int64
	AreaID      int64
	AreaName    string
	ScheduledAt time.Time
	IsProcessed bool
	ClaimedBy   *string
	ClaimedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// State reports the slot's lifecycle position at the given instant.
func (s Slot) State(now time.Time) string {
	if s.IsProcessed {
		return StateProcessed
	}
	if !s.ScheduledAt.After(now) {
		return StateDue
	}
	return StateOpen
}

// Validate enforces the write-time invariant: a slot must be scheduled
// strictly in the future.
func (s Slot) Validate(now time.Time) error {
	if s.AreaID <= 0 {
		return fmt.Errorf("area_id required")
	}
	if s.ScheduledAt.IsZero() {
		return fmt.Errorf("scheduled_datetime required")
	}
	if !s.ScheduledAt.After(now) {
		return ErrPastSchedule
	}
	return nil
}

var (
	ErrPastSchedule = fmt.Errorf("scheduled_datetime must be in the future")
	ErrSlotLocked   = fmt.Errorf("slot is due or processed and can no longer be modified")
	ErrAreaInactive = fmt.Errorf("area is not active")
)

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, s Slot) (int64, error) {
	var active bool
	if err := r.db.QueryRow(ctx, `SELECT is_active FROM areas WHERE id=$1`, s.AreaID).Scan(&active); err != nil {
		return 0, db.WrapNotFound(err)
	}
	if !active {
		return 0, ErrAreaInactive
	}

	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO reservation_slots(area_id, scheduled_datetime)
VALUES ($1,$2)
RETURNING id`, s.AreaID, s.ScheduledAt).Scan(&id)
	return id, db.WrapNotFound(err)
}

const slotColumns = `
s.id, s.area_id, a.name, s.scheduled_datetime, s.is_processed, s.claimed_by, s.claimed_at, s.created_at, s.updated_at`

func scanSlot(row db.Row) (Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.AreaID, &s.AreaName, &s.ScheduledAt, &s.IsProcessed, &s.ClaimedBy, &s.ClaimedAt, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Slot, error) {
	s, err := scanSlot(r.db.QueryRow(ctx, `
SELECT `+slotColumns+`
FROM reservation_slots s JOIN areas a ON a.id = s.area_id
WHERE s.id=$1`, id))
	if err != nil {
		return Slot{}, db.WrapNotFound(err)
	}
	return s, nil
}

// List returns slots newest-scheduled first, optionally filtered by
// area and processed flag.
func (r *Repo) List(ctx context.Context, areaID int64, processed *bool) ([]Slot, error) {
	q := `
SELECT ` + slotColumns + `
FROM reservation_slots s JOIN areas a ON a.id = s.area_id
WHERE 1=1`
	var args []any
	if areaID > 0 {
		args = append(args, areaID)
		q += fmt.Sprintf(" AND s.area_id=$%d", len(args))
	}
	if processed != nil {
		args = append(args, *processed)
		q += fmt.Sprintf(" AND s.is_processed=$%d", len(args))
	}
	q += ` ORDER BY s.scheduled_datetime DESC`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update rewrites the schedule of a slot that is still OPEN and
// unclaimed. Slots that are due, claimed, or processed are immutable.
func (r *Repo) Update(ctx context.Context, id int64, scheduledAt time.Time) error {
	n, err := r.db.Exec(ctx, `
UPDATE reservation_slots
SET scheduled_datetime=$2, updated_at=now()
WHERE id=$1 AND is_processed=FALSE AND claimed_by IS NULL AND scheduled_datetime > now()`,
		id, scheduledAt)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.lockedOrMissing(ctx, id)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	n, err := r.db.Exec(ctx, `
DELETE FROM reservation_slots
WHERE id=$1 AND is_processed=FALSE AND claimed_by IS NULL AND scheduled_datetime > now()`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.lockedOrMissing(ctx, id)
	}
	return nil
}

func (r *Repo) lockedOrMissing(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reservation_slots WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrSlotLocked
	}
	return db.ErrNotFound
}

// Due returns unprocessed slots whose scheduled time has passed and
// that are claimable: never claimed, or claimed before staleBefore
// (a crashed owner whose claim went stale).
func (r *Repo) Due(ctx context.Context, staleBefore time.Time, limit int) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+slotColumns+`
FROM reservation_slots s JOIN areas a ON a.id = s.area_id
WHERE s.is_processed=FALSE
  AND s.scheduled_datetime <= now()
  AND (s.claimed_by IS NULL OR s.claimed_at < $1)
ORDER BY s.scheduled_datetime ASC
LIMIT $2`, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Claim performs the OPEN->DUE transition: an atomic compare-and-swap
// on the claim token so at most one watcher instance owns the slot.
// A lost race returns false, not an error.
func (r *Repo) Claim(ctx context.Context, id int64, token string, staleBefore time.Time) (bool, error) {
	n, err := r.db.Exec(ctx, `
UPDATE reservation_slots
SET claimed_by=$2, claimed_at=now(), updated_at=now()
WHERE id=$1 AND is_processed=FALSE
  AND (claimed_by IS NULL OR claimed_at < $3)`,
		id, token, staleBefore)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkProcessed performs the DUE->PROCESSED transition exactly once.
func (r *Repo) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	n, err := r.db.Exec(ctx, `
UPDATE reservation_slots
SET is_processed=TRUE, updated_at=now()
WHERE id=$1 AND is_processed=FALSE`, id)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
