package slots

import (
	"errors"
	"testing"
	"time"
)

func TestSlotValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		slot    Slot
		wantErr error
	}{
		{
			name: "future slot is valid",
			slot: Slot{AreaID: 1, ScheduledAt: now.Add(time.Hour)},
		},
		{
			name:    "past slot rejected",
			slot:    Slot{AreaID: 1, ScheduledAt: now.Add(-time.Second)},
			wantErr: ErrPastSchedule,
		},
		{
			name:    "exactly now rejected",
			slot:    Slot{AreaID: 1, ScheduledAt: now},
			wantErr: ErrPastSchedule,
		},
		{
			name: "missing area",
			slot: Slot{ScheduledAt: now.Add(time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate(now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if tt.slot.AreaID <= 0 {
				if err == nil {
					t.Fatalf("expected error for missing area")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSlotState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := Slot{ScheduledAt: now.Add(time.Hour)}
	if got := s.State(now); got != StateOpen {
		t.Fatalf("expected OPEN, got %s", got)
	}

	s.ScheduledAt = now.Add(-time.Minute)
	if got := s.State(now); got != StateDue {
		t.Fatalf("expected DUE, got %s", got)
	}

	s.IsProcessed = true
	if got := s.State(now); got != StateProcessed {
		t.Fatalf("expected PROCESSED, got %s", got)
	}
}
