// Package dispatch fans out the booking attempts for one due slot
// across a bounded pool of workers. Every customer ends with exactly
// one terminal attempt in the ledger; the ledger's uniqueness guard
// makes duplicate fan-outs (crash recovery, double triggers) harmless.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/land-scheduler/internal/booking"
	"github.com/example/land-scheduler/internal/customers"
	"github.com/example/land-scheduler/internal/ledger"
	"github.com/example/land-scheduler/internal/slots"
)

type Ledger interface {
	Has(ctx context.Context, slotID, customerID int64) (bool, error)
	Record(ctx context.Context, a ledger.Attempt) (int64, error)
}

type StatusWriter interface {
	SetReservationStatus(ctx context.Context, customerID int64, status string) error
}

type Submitter interface {
	Submit(ctx context.Context, r booking.Request) (booking.Result, error)
}

type Pool struct {
	Ledger    Ledger
	Customers StatusWriter
	Client    Submitter
	Workers   int
	Retry     Backoff
	Log       *slog.Logger
}

// Dispatch submits one booking attempt per customer, at most Workers
// in flight at once. It returns once every customer has settled; a
// single customer's rejection never blocks the others. A non-nil error
// means at least one customer has no terminal attempt recorded, so the
// slot must not be marked processed yet.
func (p *Pool) Dispatch(ctx context.Context, slot slots.Slot, custs []customers.Customer) error {
	var g errgroup.Group
	g.SetLimit(p.Workers)

	for _, c := range custs {
		c := c
		g.Go(func() error {
			return p.dispatchOne(ctx, slot, c)
		})
	}
	return g.Wait()
}

// dispatchOne settles one customer. It returns an error only when the
// customer is left without a terminal attempt (ledger unreachable,
// canceled mid-backoff); a rejected booking is a settled outcome, not
// an error.
func (p *Pool) dispatchOne(ctx context.Context, slot slots.Slot, cust customers.Customer) error {
	log := p.Log.With("slot_id", slot.ID, "customer_id", cust.ID)

	has, err := p.Ledger.Has(ctx, slot.ID, cust.ID)
	if err != nil {
		log.Error("ledger lookup failed, leaving customer for recovery", "error", err)
		return fmt.Errorf("ledger lookup for customer %d: %w", cust.ID, err)
	}
	if has {
		log.Debug("attempt already recorded, skipping")
		return nil
	}

	req := booking.Request{
		NationalID:  cust.NationalID,
		PhoneNumber: cust.PhoneNumber,
		Area:        slot.AreaName,
	}

	var (
		firstSentAt time.Time
		failed      int
		attempt     ledger.Attempt
	)

	for {
		sentAt := time.Now().UTC()
		if firstSentAt.IsZero() {
			firstSentAt = sentAt
		}

		res, err := p.Client.Submit(ctx, req)
		switch {
		case err == nil:
			received := time.Now().UTC()
			status := ledger.StatusFailed
			if res.Accepted {
				status = ledger.StatusSuccess
			}
			attempt = ledger.Attempt{
				SlotID:             slot.ID,
				CustomerID:         cust.ID,
				ResponseStatus:     status,
				ResponseCode:       res.Code,
				ResponseMessage:    res.Message,
				RequestSentAt:      firstSentAt,
				ResponseReceivedAt: &received,
			}

		case booking.IsTransient(err):
			failed++
			delay, again := p.Retry.Delay(failed)
			if again {
				log.Warn("transient booking failure, will retry", "failed_attempts", failed, "delay", delay, "error", err)
				select {
				case <-ctx.Done():
					log.Warn("dispatch canceled during backoff, leaving customer for recovery")
					return fmt.Errorf("customer %d canceled during backoff: %w", cust.ID, ctx.Err())
				case <-time.After(delay):
				}
				continue
			}
			log.Error("retries exhausted", "failed_attempts", failed, "error", err)
			attempt = ledger.Attempt{
				SlotID:          slot.ID,
				CustomerID:      cust.ID,
				ResponseStatus:  ledger.StatusFailed,
				ResponseCode:    ledger.CodeDispatchExhausted,
				ResponseMessage: "retries exhausted: " + err.Error(),
				RequestSentAt:   firstSentAt,
			}

		default:
			// permanent rejection before or during the call
			log.Error("fatal booking failure", "error", err)
			attempt = ledger.Attempt{
				SlotID:          slot.ID,
				CustomerID:      cust.ID,
				ResponseStatus:  ledger.StatusFailed,
				ResponseCode:    0,
				ResponseMessage: err.Error(),
				RequestSentAt:   firstSentAt,
			}
		}
		break
	}

	if _, err := p.Ledger.Record(ctx, attempt); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			// lost a race with a concurrent dispatcher; the winner's
			// record stands
			log.Debug("duplicate attempt write swallowed")
			return nil
		}
		log.Error("recording attempt failed, leaving customer for recovery", "error", err)
		return fmt.Errorf("recording attempt for customer %d: %w", cust.ID, err)
	}

	if err := p.Customers.SetReservationStatus(ctx, cust.ID, attempt.ResponseStatus); err != nil {
		// projection is eventually consistent; the ledger row is the truth
		log.Error("customer status projection update failed", "error", err)
	}

	log.Info("attempt settled", "status", attempt.ResponseStatus, "code", attempt.ResponseCode)
	return nil
}
