// Package analytics is the read side over the attempt ledger: aggregate
// success/failure/open counts overall and per area. "Open" counts
// (slot, customer) exposure with no terminal attempt yet; only terminal
// attempts enter the success-rate denominator.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/example/land-scheduler/internal/cache"
)

type Filter struct {
	AreaID int64
	From   *time.Time
	To     *time.Time
}

type AreaStats struct {
	AreaID      int64   `json:"area_id"`
	AreaName    string  `json:"area_name"`
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	Open        int64   `json:"open"`
	SuccessRate float64 `json:"success_rate"`
}

type Summary struct {
	TotalAttempts int64       `json:"total_attempts"`
	SuccessCount  int64       `json:"success_count"`
	FailedCount   int64       `json:"failed_count"`
	OpenCount     int64       `json:"open_count"`
	SuccessRate   float64     `json:"success_rate"`
	ByArea        []AreaStats `json:"by_area"`
}

// Store produces the raw per-area counts the summary is built from.
type Store interface {
	AreaStats(ctx context.Context, f Filter) ([]AreaStats, error)
}

type Service struct {
	Store    Store
	Cache    cache.Cache // nil disables caching
	CacheTTL time.Duration
	Log      *slog.Logger
}

func (s *Service) Summary(ctx context.Context, f Filter) (Summary, error) {
	key := summaryKey(f)
	if s.Cache != nil {
		if b, ok, err := s.Cache.Get(ctx, key); err != nil {
			s.Log.Warn("summary cache read failed", "error", err)
		} else if ok {
			var sum Summary
			if err := json.Unmarshal(b, &sum); err == nil {
				return sum, nil
			}
			s.Log.Warn("discarding undecodable cached summary", "key", key)
		}
	}

	rows, err := s.Store.AreaStats(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("area stats: %w", err)
	}
	sum := buildSummary(rows)

	if s.Cache != nil {
		if b, err := json.Marshal(sum); err == nil {
			if err := s.Cache.Set(ctx, key, b, s.CacheTTL); err != nil {
				s.Log.Warn("summary cache write failed", "error", err)
			}
		}
	}
	return sum, nil
}

func summaryKey(f Filter) string {
	from, to := "", ""
	if f.From != nil {
		from = f.From.UTC().Format(time.RFC3339)
	}
	if f.To != nil {
		to = f.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("analytics:summary:area=%d:from=%s:to=%s", f.AreaID, from, to)
}

func buildSummary(rows []AreaStats) Summary {
	sum := Summary{ByArea: make([]AreaStats, 0, len(rows))}
	for _, r := range rows {
		r.Total = r.Success + r.Failed + r.Open
		r.SuccessRate = successRate(r.Success, r.Success+r.Failed)
		sum.ByArea = append(sum.ByArea, r)

		sum.SuccessCount += r.Success
		sum.FailedCount += r.Failed
		sum.OpenCount += r.Open
	}
	sum.TotalAttempts = sum.SuccessCount + sum.FailedCount
	sum.SuccessRate = successRate(sum.SuccessCount, sum.TotalAttempts)
	return sum
}

// successRate is success/total*100 computed with exact rational
// arithmetic, then rounded to one decimal. Zero total is a 0 rate,
// never a division error.
func successRate(success, total int64) float64 {
	if total == 0 {
		return 0
	}
	r := big.NewRat(success*100, total)
	f, _ := strconv.ParseFloat(r.FloatString(1), 64)
	return f
}
