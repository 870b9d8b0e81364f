package cycle

import (
	"errors"
	"testing"

	"flextraff-service/internal/domain/traffic"
)

func newTestAllocation(t *testing.T, total, north, south, east int) *Allocation {
	t.Helper()
	a := NewAllocation(total, north, south, east, 10)
	if a.Capacity() != nil {
		t.Fatalf("unexpected capacity condition: %v", a.Capacity())
	}
	return a
}

func sumGreens(a *Allocation) int {
	sum := 0
	for _, g := range a.Greens() {
		sum += g
	}
	return sum
}

func TestAllocationDerivesWest(t *testing.T) {
	a := newTestAllocation(t, 60, 20, 15, 10)
	if got := a.Green(traffic.LaneWest); got != 15 {
		t.Errorf("west = %d, want 15", got)
	}
}

func TestEditLaneRejectsOverCapacity(t *testing.T) {
	a := newTestAllocation(t, 60, 20, 15, 10)
	before := a.Greens()

	err := a.EditLane(traffic.LaneNorth, 50)

	var capErr *traffic.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("EditLane() error = %v, want CapacityError", err)
	}
	if capErr.Lane != traffic.LaneNorth || capErr.Requested != 50 || capErr.Assigned != 25 {
		t.Errorf("CapacityError = %+v", capErr)
	}
	if a.Greens() != before {
		t.Errorf("greens = %v, want unchanged %v", a.Greens(), before)
	}
	if a.Capacity() == nil {
		t.Error("capacity condition should stay active after a rejected edit")
	}
	if err := a.Validate(); !errors.Is(err, traffic.ErrCapacityExceeded) {
		t.Errorf("Validate() = %v, want ErrCapacityExceeded", err)
	}
}

func TestEditLaneCommitAndClear(t *testing.T) {
	a := newTestAllocation(t, 60, 20, 15, 10)
	_ = a.EditLane(traffic.LaneNorth, 50)

	if err := a.EditLane(traffic.LaneNorth, 30); err != nil {
		t.Fatalf("EditLane() unexpected error: %v", err)
	}
	if a.Capacity() != nil {
		t.Errorf("capacity condition should be cleared, got %v", a.Capacity())
	}
	if got := a.Green(traffic.LaneWest); got != 5 {
		t.Errorf("west = %d, want 5", got)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestEditLaneClampsNegative(t *testing.T) {
	a := newTestAllocation(t, 60, 20, 15, 10)
	if err := a.EditLane(traffic.LaneSouth, -7); err != nil {
		t.Fatalf("EditLane() unexpected error: %v", err)
	}
	if got := a.Green(traffic.LaneSouth); got != 0 {
		t.Errorf("south = %d, want 0", got)
	}
	if got := a.Green(traffic.LaneWest); got != 30 {
		t.Errorf("west = %d, want 30", got)
	}
}

func TestEditLaneWestIsReadOnly(t *testing.T) {
	a := newTestAllocation(t, 60, 20, 15, 10)
	before := a.Greens()
	if err := a.EditLane(traffic.LaneWest, 1); !errors.Is(err, traffic.ErrValidation) {
		t.Fatalf("EditLane(west) error = %v, want ErrValidation", err)
	}
	if a.Greens() != before {
		t.Errorf("greens changed to %v", a.Greens())
	}

	for _, lane := range traffic.EditableLanes {
		if err := a.EditLane(lane, 5); err != nil {
			t.Errorf("EditLane(%s) error = %v", lane, err)
		}
	}
	if got := a.Green(traffic.LaneWest); got != 45 {
		t.Errorf("west = %d, want 45", got)
	}
}

func TestEditTotalCycle(t *testing.T) {
	t.Run("recomputes west", func(t *testing.T) {
		a := newTestAllocation(t, 60, 20, 15, 10)
		if err := a.EditTotalCycle(90); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := a.Green(traffic.LaneWest); got != 45 {
			t.Errorf("west = %d, want 45", got)
		}
	})

	t.Run("below floor rejected without mutation", func(t *testing.T) {
		a := newTestAllocation(t, 60, 20, 15, 10)
		if err := a.EditTotalCycle(5); !errors.Is(err, traffic.ErrValidation) {
			t.Fatalf("error = %v, want ErrValidation", err)
		}
		if a.Total() != 60 {
			t.Errorf("total = %d, want 60", a.Total())
		}
	})

	t.Run("over assigned commits total and keeps west", func(t *testing.T) {
		a := newTestAllocation(t, 60, 20, 15, 10)
		err := a.EditTotalCycle(40)
		if !errors.Is(err, traffic.ErrCapacityExceeded) {
			t.Fatalf("error = %v, want ErrCapacityExceeded", err)
		}
		if a.Total() != 40 {
			t.Errorf("total = %d, want 40", a.Total())
		}
		if got := a.Green(traffic.LaneWest); got != 15 {
			t.Errorf("west = %d, want last computed 15", got)
		}
		if err := a.Validate(); err == nil {
			t.Error("Validate() should fail while capacity is exceeded")
		}

		if err := a.EditLane(traffic.LaneNorth, 5); err != nil {
			t.Fatalf("EditLane() unexpected error: %v", err)
		}
		if got := a.Green(traffic.LaneWest); got != 10 {
			t.Errorf("west = %d, want 10", got)
		}
		if err := a.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestAllocationInvariantAfterEditSequence(t *testing.T) {
	type edit struct {
		lane  traffic.Lane
		total int
		value int
	}
	steps := []edit{
		{lane: traffic.LaneNorth, value: 30},
		{total: 45},
		{lane: traffic.LaneEast, value: 0},
		{lane: traffic.LaneSouth, value: 100},
		{total: 120},
		{lane: traffic.LaneSouth, value: 60},
		{total: 20},
		{total: 200},
		{lane: traffic.LaneEast, value: 25},
	}

	a := newTestAllocation(t, 60, 15, 15, 15)
	for i, st := range steps {
		if st.total != 0 {
			_ = a.EditTotalCycle(st.total)
		} else {
			_ = a.EditLane(st.lane, st.value)
		}
		for _, g := range a.Greens() {
			if g < 0 {
				t.Fatalf("step %d: negative lane in %v", i, a.Greens())
			}
		}
		if a.Capacity() == nil && sumGreens(a) != a.Total() {
			t.Fatalf("step %d: sum %d != total %d", i, sumGreens(a), a.Total())
		}
	}
	if a.Capacity() != nil {
		t.Fatalf("sequence should end consistent, got %v", a.Capacity())
	}
	if sumGreens(a) != 200 {
		t.Errorf("sum = %d, want 200", sumGreens(a))
	}
}

func TestNewAllocationOverAssigned(t *testing.T) {
	a := NewAllocation(30, 20, 20, 0, 10)
	if a.Capacity() == nil {
		t.Fatal("expected capacity condition")
	}
	if got := a.Green(traffic.LaneWest); got != 0 {
		t.Errorf("west = %d, want 0", got)
	}
}

func TestAllocationStateRoundTrip(t *testing.T) {
	a := newTestAllocation(t, 60, 20, 15, 10)
	_ = a.EditTotalCycle(40)

	restored := restoreAllocation(a.State(), 10)
	if restored.Greens() != a.Greens() || restored.Total() != a.Total() {
		t.Errorf("restored = %v/%d, want %v/%d", restored.Greens(), restored.Total(), a.Greens(), a.Total())
	}
	if restored.Capacity() == nil {
		t.Error("restored allocation lost its capacity condition")
	}
}
