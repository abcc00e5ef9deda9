package areas

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/land-scheduler/internal/db"
)

type Area struct {
	ID          int64
	Name        string
	Description string
	Link        string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Area) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name required")
	}
	return nil
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

var ErrDuplicateName = fmt.Errorf("area name already exists")

func (r *Repo) Create(ctx context.Context, a Area) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO areas(name, description, link, is_active)
VALUES ($1,$2,$3,$4)
RETURNING id`,
		a.Name, a.Description, a.Link, a.IsActive,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicateName
	}
	return id, db.WrapNotFound(err)
}

func (r *Repo) Get(ctx context.Context, id int64) (Area, error) {
	var a Area
	err := r.db.QueryRow(ctx, `
SELECT id, name, COALESCE(description,''), COALESCE(link,''), is_active, created_at, updated_at
FROM areas WHERE id=$1`, id).
		Scan(&a.ID, &a.Name, &a.Description, &a.Link, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Area{}, db.WrapNotFound(err)
	}
	return a, nil
}

func (r *Repo) List(ctx context.Context) ([]Area, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, name, COALESCE(description,''), COALESCE(link,''), is_active, created_at, updated_at
FROM areas ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Area
	for rows.Next() {
		var a Area
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Link, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) Update(ctx context.Context, a Area) error {
	n, err := r.db.Exec(ctx, `
UPDATE areas SET name=$2, description=$3, link=$4, is_active=$5, updated_at=now()
WHERE id=$1`,
		a.ID, a.Name, a.Description, a.Link, a.IsActive)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// Delete removes an area with no dependents. History-bearing areas keep
// their rows; callers should deactivate instead.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	n, err := r.db.Exec(ctx, `DELETE FROM areas WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete area: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}
