// Package ledger is the durable record of booking attempts: exactly one
// row per (slot, customer) pair, append-only, enforced by a unique
// constraint in the store itself. It is the source of truth for
// idempotent dispatch, crash recovery, and analytics.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/land-scheduler/internal/db"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Synthetic response code recorded when retries are exhausted without a
// usable response from the booking endpoint.
const CodeDispatchExhausted = 599

type Attempt struct {
	ID                 int64
	SlotID             int64
	CustomerID         int64
	ResponseStatus     string
	ResponseCode       int
	ResponseMessage    string
	RequestSentAt      time.Time
	ResponseReceivedAt *time.Time
	CreatedAt          time.Time

	// joined context, populated on reads
	CustomerName       string
	CustomerNationalID string
	AreaID             int64
	AreaName           string
	ScheduledAt        time.Time
}

// ErrDuplicate means an attempt already exists for the pair. Callers
// treat it as "already handled", never as a failure to surface.
var ErrDuplicate = errors.New("attempt already recorded for this slot and customer")

type Filter struct {
	AreaID int64
	Status string
	From   *time.Time
	To     *time.Time
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

// Record appends one terminal attempt. The unique constraint on
// (reservation_slot_id, customer_id) makes concurrent duplicate writes
// safe: the loser gets ErrDuplicate.
func (r *Repo) Record(ctx context.Context, a Attempt) (int64, error) {
	if a.ResponseStatus != StatusSuccess && a.ResponseStatus != StatusFailed {
		return 0, fmt.Errorf("attempt status must be terminal, got %q", a.ResponseStatus)
	}
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO reservation_attempts(reservation_slot_id, customer_id, response_status, response_code, response_message, request_sent_at, response_received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`,
		a.SlotID, a.CustomerID, a.ResponseStatus, a.ResponseCode, a.ResponseMessage, a.RequestSentAt, a.ResponseReceivedAt,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, db.WrapNotFound(err)
}

func (r *Repo) Has(ctx context.Context, slotID, customerID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM reservation_attempts WHERE reservation_slot_id=$1 AND customer_id=$2)`,
		slotID, customerID).Scan(&exists)
	return exists, err
}

const attemptColumns = `
att.id, att.reservation_slot_id, att.customer_id, att.response_status, att.response_code, att.response_message,
att.request_sent_at, att.response_received_at, att.created_at,
c.name, c.national_id, a.id, a.name, s.scheduled_datetime`

func scanAttempt(row db.Row) (Attempt, error) {
	var a Attempt
	err := row.Scan(&a.ID, &a.SlotID, &a.CustomerID, &a.ResponseStatus, &a.ResponseCode, &a.ResponseMessage,
		&a.RequestSentAt, &a.ResponseReceivedAt, &a.CreatedAt,
		&a.CustomerName, &a.CustomerNationalID, &a.AreaID, &a.AreaName, &a.ScheduledAt)
	return a, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Attempt, error) {
	a, err := scanAttempt(r.db.QueryRow(ctx, `
SELECT `+attemptColumns+`
FROM reservation_attempts att
JOIN customers c ON c.id = att.customer_id
JOIN reservation_slots s ON s.id = att.reservation_slot_id
JOIN areas a ON a.id = s.area_id
WHERE att.id=$1`, id))
	if err != nil {
		return Attempt{}, db.WrapNotFound(err)
	}
	return a, nil
}

// List returns attempts most recently sent first.
func (r *Repo) List(ctx context.Context, f Filter) ([]Attempt, error) {
	q := `
SELECT ` + attemptColumns + `
FROM reservation_attempts att
JOIN customers c ON c.id = att.customer_id
JOIN reservation_slots s ON s.id = att.reservation_slot_id
JOIN areas a ON a.id = s.area_id
WHERE 1=1`
	var args []any
	if f.AreaID > 0 {
		args = append(args, f.AreaID)
		q += fmt.Sprintf(" AND a.id=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND att.response_status=$%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND att.request_sent_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND att.request_sent_at <= $%d", len(args))
	}
	q += ` ORDER BY att.request_sent_at DESC`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
