// Package processor owns one claimed slot's lifecycle: snapshot the
// area's customers, fan out through the dispatch pool, then mark the
// slot processed once everything settles or the grace period runs out.
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/land-scheduler/internal/customers"
	"github.com/example/land-scheduler/internal/slots"
)

type SlotStore interface {
	MarkProcessed(ctx context.Context, id int64) (bool, error)
}

type CustomerSource interface {
	SnapshotByArea(ctx context.Context, areaID int64) ([]customers.Customer, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, slot slots.Slot, custs []customers.Customer) error
}

type Processor struct {
	Slots     SlotStore
	Customers CustomerSource
	Pool      Dispatcher

	// Timeout bounds how long one slot's fan-out is waited on before the
	// slot is marked processed regardless.
	Timeout time.Duration

	Log *slog.Logger
}

// Process runs a slot the watcher has already claimed. The customer set
// is snapshotted here, at claim time: customers added to the area later
// are not part of this slot's run.
//
// Errors are logged, not returned; an unfinished slot keeps its claim
// and is picked up again once the claim goes stale.
func (p *Processor) Process(ctx context.Context, slot slots.Slot) {
	log := p.Log.With("slot_id", slot.ID, "area_id", slot.AreaID)

	custs, err := p.Customers.SnapshotByArea(ctx, slot.AreaID)
	if err != nil {
		log.Error("customer snapshot failed, slot left claimed for retry", "error", err)
		return
	}
	log.Info("processing slot", "customers", len(custs), "scheduled_at", slot.ScheduledAt)

	// The fan-out runs detached from the wait timeout: submissions are
	// not revocable once sent, so in-flight workers finish and write
	// their attempts even after we stop waiting. The ledger's
	// uniqueness guard keeps those late writes safe.
	dispatchCtx := context.WithoutCancel(ctx)

	done := make(chan error, 1)
	go func() {
		done <- p.Pool.Dispatch(dispatchCtx, slot, custs)
	}()

	timer := time.NewTimer(p.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			// at least one customer has no terminal attempt; keep the
			// claim so the stale-claim path re-runs the slot
			log.Error("dispatch incomplete, slot left claimed for retry", "error", err)
			return
		}
	case <-timer.C:
		log.Warn("dispatch grace period elapsed, marking slot processed with work in flight")
	case <-ctx.Done():
		// shutting down; leave the claim so a restart resumes the slot
		log.Warn("processing interrupted by shutdown, slot left claimed")
		return
	}

	ok, err := p.Slots.MarkProcessed(dispatchCtx, slot.ID)
	if err != nil {
		log.Error("marking slot processed failed", "error", err)
		return
	}
	if !ok {
		// someone else already flipped it; the transition happens once
		log.Debug("slot was already marked processed")
		return
	}
	log.Info("slot processed")
}
