package customers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/land-scheduler/internal/db"
)

// Aggregate reservation status, derived from the customer's most recent
// attempt. Never written directly by callers outside the dispatch path.
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

type Customer struct {
	ID                int64
	AreaID            int64
	AreaName          string
	Name              string
	PhoneNumber       string
	NationalID        string
	ReservationStatus string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name required")
	}
	if strings.TrimSpace(c.PhoneNumber) == "" {
		return fmt.Errorf("phone_number required")
	}
	if strings.TrimSpace(c.NationalID) == "" {
		return fmt.Errorf("national_id required")
	}
	if c.AreaID <= 0 {
		return fmt.Errorf("area_id required")
	}
	return nil
}

var (
	ErrDuplicateNationalID = fmt.Errorf("national_id already registered")
	ErrAreaInactive        = fmt.Errorf("area is not active")
)

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, c Customer) (int64, error) {
	var active bool
	if err := r.db.QueryRow(ctx, `SELECT is_active FROM areas WHERE id=$1`, c.AreaID).Scan(&active); err != nil {
		return 0, db.WrapNotFound(err)
	}
	if !active {
		return 0, ErrAreaInactive
	}

	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO customers(area_id, name, phone_number, national_id, reservation_status)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`,
		c.AreaID, c.Name, c.PhoneNumber, c.NationalID, StatusPending,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicateNationalID
	}
	return id, db.WrapNotFound(err)
}

const customerColumns = `
c.id, c.area_id, a.name, c.name, c.phone_number, c.national_id, c.reservation_status, c.created_at, c.updated_at`

func scanCustomer(row db.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.AreaID, &c.AreaName, &c.Name, &c.PhoneNumber, &c.NationalID, &c.ReservationStatus, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `
SELECT `+customerColumns+`
FROM customers c JOIN areas a ON a.id = c.area_id
WHERE c.id=$1`, id))
	if err != nil {
		return Customer{}, db.WrapNotFound(err)
	}
	return c, nil
}

// List returns customers, optionally restricted to one area (areaID > 0).
func (r *Repo) List(ctx context.Context, areaID int64) ([]Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers c JOIN areas a ON a.id = c.area_id`
	var args []any
	if areaID > 0 {
		q += ` WHERE c.area_id=$1`
		args = append(args, areaID)
	}
	q += ` ORDER BY c.created_at DESC`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SnapshotByArea loads the customer set dispatch fans out to. Taken at
// claim time; customers added to the area afterwards are not included
// in that slot's run.
func (r *Repo) SnapshotByArea(ctx context.Context, areaID int64) ([]Customer, error) {
	return r.List(ctx, areaID)
}

// Update rewrites the customer's mutable fields. Moving to a different
// area goes through the same active-area gate as Create, so an
// inactive area cannot gain customers through edits.
func (r *Repo) Update(ctx context.Context, c Customer) error {
	var curArea int64
	if err := r.db.QueryRow(ctx, `SELECT area_id FROM customers WHERE id=$1`, c.ID).Scan(&curArea); err != nil {
		return db.WrapNotFound(err)
	}
	if c.AreaID != curArea {
		var active bool
		if err := r.db.QueryRow(ctx, `SELECT is_active FROM areas WHERE id=$1`, c.AreaID).Scan(&active); err != nil {
			return db.WrapNotFound(err)
		}
		if !active {
			return ErrAreaInactive
		}
	}

	n, err := r.db.Exec(ctx, `
UPDATE customers SET name=$2, phone_number=$3, national_id=$4, area_id=$5, updated_at=now()
WHERE id=$1`,
		c.ID, c.Name, c.PhoneNumber, c.NationalID, c.AreaID)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateNationalID
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	n, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// SetReservationStatus recomputes the aggregate status projection when
// a terminal attempt lands for the customer.
func (r *Repo) SetReservationStatus(ctx context.Context, id int64, status string) error {
	if status != StatusSuccess && status != StatusFailed && status != StatusPending {
		return fmt.Errorf("invalid reservation status %q", status)
	}
	_, err := r.db.Exec(ctx, `UPDATE customers SET reservation_status=$2, updated_at=now() WHERE id=$1`, id, status)
	return err
}
