package analytics

import (
	"context"
	"fmt"

	"github.com/example/land-scheduler/internal/db"
)

// PostgresStore computes per-area exposure directly in SQL. For every
// area, customers and in-scope slots (scheduled time already reached)
// are cross-joined into (slot, customer) pairs, then matched against
// the attempt ledger: a matched pair is success or failed, an unmatched
// one is open.
type PostgresStore struct{ db *db.DB }

func NewPostgresStore(d *db.DB) *PostgresStore { return &PostgresStore{db: d} }

func (s *PostgresStore) AreaStats(ctx context.Context, f Filter) ([]AreaStats, error) {
	q := `
SELECT ar.id, ar.name,
       COUNT(att.id) FILTER (WHERE att.response_status = 'SUCCESS') AS success,
       COUNT(att.id) FILTER (WHERE att.response_status = 'FAILED')  AS failed,
       COUNT(*) FILTER (WHERE s.id IS NOT NULL AND c.id IS NOT NULL AND att.id IS NULL) AS open
FROM areas ar
LEFT JOIN customers c ON c.area_id = ar.id
LEFT JOIN reservation_slots s
       ON s.area_id = ar.id AND s.scheduled_datetime <= now()`
	var args []any
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND s.scheduled_datetime >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(" AND s.scheduled_datetime <= $%d", len(args))
	}
	q += `
LEFT JOIN reservation_attempts att
       ON att.reservation_slot_id = s.id AND att.customer_id = c.id`
	if f.AreaID > 0 {
		args = append(args, f.AreaID)
		q += fmt.Sprintf(" WHERE ar.id = $%d", len(args))
	}
	q += `
GROUP BY ar.id, ar.name
ORDER BY ar.name ASC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AreaStats
	for rows.Next() {
		var r AreaStats
		if err := rows.Scan(&r.AreaID, &r.AreaName, &r.Success, &r.Failed, &r.Open); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
