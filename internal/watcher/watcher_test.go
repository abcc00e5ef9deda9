package watcher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/land-scheduler/internal/slots"
)

// fakeClaimStore implements the claim CAS the real store performs with
// a conditional UPDATE.
type fakeClaimStore struct {
	mu     sync.Mutex
	due    []slots.Slot
	claims map[int64]string
}

func newFakeClaimStore(due ...slots.Slot) *fakeClaimStore {
	return &fakeClaimStore{due: due, claims: make(map[int64]string)}
}

func (f *fakeClaimStore) Due(context.Context, time.Time, int) ([]slots.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []slots.Slot
	for _, s := range f.due {
		if _, claimed := f.claims[s.ID]; !claimed {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeClaimStore) Claim(_ context.Context, id int64, token string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, claimed := f.claims[id]; claimed {
		return false, nil
	}
	f.claims[id] = token
	return true, nil
}

type countingProcessor struct {
	mu    sync.Mutex
	seen  map[int64]int
	total int
	done  chan struct{} // closed when `want` slots processed
	want  int
}

func newCountingProcessor(want int) *countingProcessor {
	return &countingProcessor{seen: make(map[int64]int), want: want, done: make(chan struct{})}
}

func (p *countingProcessor) Process(_ context.Context, s slots.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[s.ID]++
	p.total++
	if p.total == p.want {
		close(p.done)
	}
}

func (p *countingProcessor) count(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[id]
}

func runWatcher(t *testing.T, w *Watcher, until <-chan struct{}) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = w.Run(ctx)
	}()

	select {
	case <-until:
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for watcher")
	}
	cancel()
	<-finished
}

func TestWatcher_ClaimsAndProcessesEachDueSlotOnce(t *testing.T) {
	t.Parallel()

	store := newFakeClaimStore(
		slots.Slot{ID: 1, AreaID: 1},
		slots.Slot{ID: 2, AreaID: 1},
	)
	proc := newCountingProcessor(2)

	w := &Watcher{
		Slots:      store,
		Processor:  proc,
		Interval:   5 * time.Millisecond,
		StaleAfter: time.Minute,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	runWatcher(t, w, proc.done)

	// let a few more ticks pass before asserting exactly-once
	if got := proc.count(1); got != 1 {
		t.Fatalf("slot 1 processed %d times, want 1", got)
	}
	if got := proc.count(2); got != 1 {
		t.Fatalf("slot 2 processed %d times, want 1", got)
	}
}

func TestWatcher_RacingReplicasClaimOnce(t *testing.T) {
	t.Parallel()

	store := newFakeClaimStore(slots.Slot{ID: 7, AreaID: 3})
	proc := newCountingProcessor(1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// two replicas share the store, like two processes sharing Postgres
	w1 := &Watcher{Slots: store, Processor: proc, Interval: 5 * time.Millisecond, StaleAfter: time.Minute, Log: log}
	w2 := &Watcher{Slots: store, Processor: proc, Interval: 5 * time.Millisecond, StaleAfter: time.Minute, Log: log}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, w := range []*Watcher{w1, w2} {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Run(ctx)
		}()
	}

	select {
	case <-proc.done:
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for processing")
	}
	// give the losing replica a few ticks to (incorrectly) double-claim
	time.Sleep(30 * time.Millisecond)
	cancel()
	wg.Wait()

	if got := proc.count(7); got != 1 {
		t.Fatalf("racing watchers processed slot %d times, want exactly 1", got)
	}
}
