// Package watcher drives the clock: a fixed-interval loop that finds
// due slots and claims them with a compare-and-swap token, so each slot
// is handed to processing exactly once even with several watcher
// replicas running. The same loop is the restart recovery path, since
// slots whose claim has gone stale become claimable again.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/land-scheduler/internal/slots"
)

const dueBatchSize = 25

type ClaimStore interface {
	Due(ctx context.Context, staleBefore time.Time, limit int) ([]slots.Slot, error)
	Claim(ctx context.Context, id int64, token string, staleBefore time.Time) (bool, error)
}

type Processor interface {
	Process(ctx context.Context, slot slots.Slot)
}

type Watcher struct {
	Slots     ClaimStore
	Processor Processor
	Interval  time.Duration

	// StaleAfter is how long a claim may sit before another watcher may
	// steal it (crashed owner recovery).
	StaleAfter time.Duration

	Log *slog.Logger

	wg sync.WaitGroup
}

// Run loops until ctx is canceled, then waits for in-flight slot
// processing to wind down. Each claimed slot is processed on its own
// goroutine; the loop itself never blocks on a slot.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	// kick immediately so a restart resumes stale work without waiting
	// out the first interval
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	staleBefore := time.Now().Add(-w.StaleAfter)

	due, err := w.Slots.Due(ctx, staleBefore, dueBatchSize)
	if err != nil {
		w.Log.Error("due slot scan failed", "error", err)
		return
	}

	for _, s := range due {
		s := s
		token := uuid.NewString()
		claimed, err := w.Slots.Claim(ctx, s.ID, token, staleBefore)
		if err != nil {
			w.Log.Error("slot claim failed", "slot_id", s.ID, "error", err)
			continue
		}
		if !claimed {
			// lost the race to another watcher; their problem now
			continue
		}

		w.Log.Info("slot claimed", "slot_id", s.ID, "token", token)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.Processor.Process(ctx, s)
		}()
	}
}
