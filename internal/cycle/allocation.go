package cycle

import (
	"fmt"

	"flextraff-service/internal/domain/traffic"
)

// Allocation is the manual-mode green-time split of one cycle. North, south
// and east are set by the operator; west is always the residual of the total.
// An Allocation is not safe for concurrent use.
type Allocation struct {
	floor    int
	total    int
	editable [3]int
	west     int
	capacity *traffic.CapacityError
}

// NewAllocation builds an allocation and derives west. If the editable lanes
// already exceed total the allocation starts with capacity exceeded and west 0.
func NewAllocation(total, north, south, east, floor int) *Allocation {
	a := &Allocation{
		floor:    floor,
		total:    total,
		editable: [3]int{clamp(north), clamp(south), clamp(east)},
	}
	assigned := a.assigned()
	if assigned > total {
		a.capacity = &traffic.CapacityError{Total: total, Assigned: assigned}
		return a
	}
	a.west = total - assigned
	return a
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (a *Allocation) assigned() int {
	return a.editable[0] + a.editable[1] + a.editable[2]
}

func (a *Allocation) Total() int {
	return a.total
}

// Green returns the current green time of a lane.
func (a *Allocation) Green(l traffic.Lane) int {
	switch l {
	case traffic.LaneWest:
		return a.west
	case traffic.LaneNorth, traffic.LaneSouth, traffic.LaneEast:
		return a.editable[l.Index()]
	}
	return 0
}

// Greens returns all four lanes in persisted order.
func (a *Allocation) Greens() [4]int {
	return [4]int{a.editable[0], a.editable[1], a.editable[2], a.west}
}

// Capacity returns the active capacity condition, or nil.
func (a *Allocation) Capacity() *traffic.CapacityError {
	return a.capacity
}

// EditLane sets one of the editable lanes. A value that would leave west
// negative is rejected: lanes keep their prior values and the returned
// CapacityError stays active until a later edit succeeds.
func (a *Allocation) EditLane(l traffic.Lane, value int) error {
	if !l.Valid() {
		return &traffic.ValidationError{Field: "lane", Reason: fmt.Sprintf("unknown lane %d", int(l))}
	}
	if !l.Editable() {
		return &traffic.ValidationError{Field: l.String(), Reason: "lane is derived from the remaining cycle time"}
	}

	value = clamp(value)
	others := a.assigned() - a.editable[l.Index()]
	residual := a.total - (value + others)
	if residual < 0 {
		a.capacity = &traffic.CapacityError{Lane: l, Requested: value, Total: a.total, Assigned: others}
		return a.capacity
	}

	a.editable[l.Index()] = value
	a.west = residual
	a.capacity = nil
	return nil
}

// EditTotalCycle sets the cycle length. A total below the floor is rejected
// outright. A total smaller than the editable lanes is committed but raises
// capacity exceeded and leaves west at its last computed value.
func (a *Allocation) EditTotalCycle(total int) error {
	if total < a.floor {
		return &traffic.ValidationError{
			Field:  "total_cycle_time",
			Reason: fmt.Sprintf("must be at least %d seconds, got %d", a.floor, total),
		}
	}

	a.total = total
	assigned := a.assigned()
	if assigned > total {
		a.capacity = &traffic.CapacityError{Total: total, Assigned: assigned}
		return a.capacity
	}

	a.west = total - assigned
	a.capacity = nil
	return nil
}

// Validate checks the save precondition: no active capacity condition and
// four non-negative lanes summing exactly to total.
func (a *Allocation) Validate() error {
	if a.capacity != nil {
		return a.capacity
	}
	if a.total < a.floor {
		return &traffic.ValidationError{
			Field:  "total_cycle_time",
			Reason: fmt.Sprintf("must be at least %d seconds, got %d", a.floor, a.total),
		}
	}
	sum := 0
	for _, g := range a.Greens() {
		if g < 0 {
			return &traffic.CapacityError{Total: a.total, Assigned: a.assigned()}
		}
		sum += g
	}
	if sum != a.total {
		return &traffic.CapacityError{Total: a.total, Assigned: a.assigned()}
	}
	return nil
}

// AllocationState is the serialisable form of an Allocation.
type AllocationState struct {
	TotalCycleTime int                    `json:"total_cycle_time"`
	North          int                    `json:"north"`
	South          int                    `json:"south"`
	East           int                    `json:"east"`
	West           int                    `json:"west"`
	Capacity       *traffic.CapacityError `json:"capacity_exceeded,omitempty"`
	Message        string                 `json:"message,omitempty"`
}

func (a *Allocation) State() AllocationState {
	st := AllocationState{
		TotalCycleTime: a.total,
		North:          a.editable[0],
		South:          a.editable[1],
		East:           a.editable[2],
		West:           a.west,
	}
	if a.capacity != nil {
		c := *a.capacity
		st.Capacity = &c
		st.Message = c.Error()
	}
	return st
}

func restoreAllocation(st AllocationState, floor int) *Allocation {
	a := &Allocation{
		floor:    floor,
		total:    st.TotalCycleTime,
		editable: [3]int{clamp(st.North), clamp(st.South), clamp(st.East)},
		west:     st.West,
	}
	if st.Capacity != nil {
		c := *st.Capacity
		a.capacity = &c
	}
	return a
}
