package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/land-scheduler/internal/customers"
	"github.com/example/land-scheduler/internal/slots"
)

type fakeSlotStore struct {
	mu        sync.Mutex
	processed map[int64]int
}

func newFakeSlotStore() *fakeSlotStore {
	return &fakeSlotStore{processed: make(map[int64]int)}
}

func (f *fakeSlotStore) MarkProcessed(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[id]++
	return f.processed[id] == 1, nil
}

func (f *fakeSlotStore) processedCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[id]
}

type fakeCustomerSource struct {
	custs []customers.Customer
	err   error
}

func (f *fakeCustomerSource) SnapshotByArea(context.Context, int64) ([]customers.Customer, error) {
	return f.custs, f.err
}

type fakeDispatcher struct {
	block    chan struct{} // nil means return immediately
	err      error
	mu       sync.Mutex
	received []customers.Customer
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, _ slots.Slot, custs []customers.Customer) error {
	f.mu.Lock()
	f.received = custs
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func (f *fakeDispatcher) got() []customers.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

func newProcessor(st *fakeSlotStore, src *fakeCustomerSource, d *fakeDispatcher, timeout time.Duration) *Processor {
	return &Processor{
		Slots:     st,
		Customers: src,
		Pool:      d,
		Timeout:   timeout,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestProcess_MarksProcessedAfterDispatch(t *testing.T) {
	t.Parallel()

	st := newFakeSlotStore()
	src := &fakeCustomerSource{custs: []customers.Customer{{ID: 1}, {ID: 2}}}
	d := &fakeDispatcher{}

	newProcessor(st, src, d, time.Second).Process(context.Background(), slots.Slot{ID: 11, AreaID: 2})

	if st.processedCount(11) != 1 {
		t.Fatalf("expected slot marked processed once, got %d", st.processedCount(11))
	}
	if len(d.got()) != 2 {
		t.Fatalf("expected snapshot of 2 customers handed to pool, got %d", len(d.got()))
	}
}

func TestProcess_TimeoutStillMarksProcessed(t *testing.T) {
	t.Parallel()

	st := newFakeSlotStore()
	src := &fakeCustomerSource{custs: []customers.Customer{{ID: 1}}}
	d := &fakeDispatcher{block: make(chan struct{})}
	defer close(d.block)

	start := time.Now()
	newProcessor(st, src, d, 20*time.Millisecond).Process(context.Background(), slots.Slot{ID: 12})

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Process blocked past the grace period: %v", elapsed)
	}
	if st.processedCount(12) != 1 {
		t.Fatalf("expected slot marked processed despite in-flight work, got %d", st.processedCount(12))
	}
}

func TestProcess_SnapshotFailureLeavesSlotClaimed(t *testing.T) {
	t.Parallel()

	st := newFakeSlotStore()
	src := &fakeCustomerSource{err: fmt.Errorf("db unavailable")}
	d := &fakeDispatcher{}

	newProcessor(st, src, d, time.Second).Process(context.Background(), slots.Slot{ID: 13})

	if st.processedCount(13) != 0 {
		t.Fatalf("slot must not be marked processed when the snapshot fails")
	}
	if d.got() != nil {
		t.Fatalf("nothing should have been dispatched")
	}
}

func TestProcess_UnsettledDispatchLeavesSlotClaimed(t *testing.T) {
	t.Parallel()

	st := newFakeSlotStore()
	src := &fakeCustomerSource{custs: []customers.Customer{{ID: 1}, {ID: 2}, {ID: 3}}}
	d := &fakeDispatcher{err: fmt.Errorf("ledger lookup for customer 2: db connection reset")}

	newProcessor(st, src, d, time.Second).Process(context.Background(), slots.Slot{ID: 15})

	if st.processedCount(15) != 0 {
		t.Fatalf("slot with unsettled customers must stay claimed for a re-run")
	}
}

func TestProcess_ShutdownLeavesSlotClaimed(t *testing.T) {
	t.Parallel()

	st := newFakeSlotStore()
	src := &fakeCustomerSource{custs: []customers.Customer{{ID: 1}}}
	d := &fakeDispatcher{block: make(chan struct{})}
	defer close(d.block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	newProcessor(st, src, d, time.Minute).Process(ctx, slots.Slot{ID: 14})

	if st.processedCount(14) != 0 {
		t.Fatalf("interrupted slot must stay claimed, not processed")
	}
}
