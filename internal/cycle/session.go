package cycle

import (
	"fmt"
	"time"

	"flextraff-service/internal/domain/traffic"
)

// Options carries the tunables of the configuration engine.
type Options struct {
	MinCycleFloor  int
	DefaultTotal   int
	DefaultGreen   int
	DefaultAutoMin int
	DefaultAutoMax int
}

func DefaultOptions() Options {
	return Options{
		MinCycleFloor:  10,
		DefaultTotal:   60,
		DefaultGreen:   15,
		DefaultAutoMin: 30,
		DefaultAutoMax: 90,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinCycleFloor <= 0 {
		o.MinCycleFloor = d.MinCycleFloor
	}
	if o.DefaultTotal <= 0 {
		o.DefaultTotal = d.DefaultTotal
	}
	if o.DefaultGreen < 0 {
		o.DefaultGreen = d.DefaultGreen
	}
	if o.DefaultAutoMin <= 0 {
		o.DefaultAutoMin = d.DefaultAutoMin
	}
	if o.DefaultAutoMax < o.DefaultAutoMin {
		o.DefaultAutoMax = d.DefaultAutoMax
	}
	return o
}

// AutomaticSettings bound the externally computed cycle length.
type AutomaticSettings struct {
	MinCycleSeconds int `json:"min_cycle_seconds"`
	MaxCycleSeconds int `json:"max_cycle_seconds"`
}

func (a AutomaticSettings) Validate() error {
	if a.MinCycleSeconds <= 0 {
		return &traffic.ValidationError{Field: "min_cycle_seconds", Reason: fmt.Sprintf("must be positive, got %d", a.MinCycleSeconds)}
	}
	if a.MaxCycleSeconds <= 0 {
		return &traffic.ValidationError{Field: "max_cycle_seconds", Reason: fmt.Sprintf("must be positive, got %d", a.MaxCycleSeconds)}
	}
	if a.MaxCycleSeconds < a.MinCycleSeconds {
		return &traffic.ValidationError{
			Field:  "max_cycle_seconds",
			Reason: fmt.Sprintf("must be >= min_cycle_seconds (%d), got %d", a.MinCycleSeconds, a.MaxCycleSeconds),
		}
	}
	return nil
}

// Session is one operator's in-progress configuration of a junction. Mode
// changes and edits stay in memory until the engine saves the session.
type Session struct {
	junctionID int64
	opts       Options
	mode       traffic.Mode
	auto       AutomaticSettings
	manual     *Allocation
	latest     *traffic.CycleRecord
}

// NewSession seeds a session from the junction's latest record, or from the
// defaults when the junction has no history.
func NewSession(junctionID int64, latest *traffic.CycleRecord, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		junctionID: junctionID,
		opts:       opts,
		mode:       traffic.ModeAutomatic,
		auto: AutomaticSettings{
			MinCycleSeconds: opts.DefaultAutoMin,
			MaxCycleSeconds: opts.DefaultAutoMax,
		},
		manual: NewAllocation(opts.DefaultTotal, opts.DefaultGreen, opts.DefaultGreen, opts.DefaultGreen, opts.MinCycleFloor),
	}
	s.load(latest)
	return s
}

func (s *Session) load(latest *traffic.CycleRecord) {
	s.latest = latest
	if latest == nil {
		return
	}
	if latest.Status.Valid() {
		s.mode = latest.Status
	}
	if latest.Status != traffic.ModeManual {
		return
	}

	total := s.opts.DefaultTotal
	if latest.TotalCycleTime != nil {
		total = *latest.TotalCycleTime
	}
	green := func(l traffic.Lane) int {
		if g := latest.GreenTime(l); g != nil {
			return *g
		}
		return 0
	}
	s.manual = NewAllocation(total, green(traffic.LaneNorth), green(traffic.LaneSouth), green(traffic.LaneEast), s.opts.MinCycleFloor)
}

func (s *Session) JunctionID() int64 {
	return s.junctionID
}

func (s *Session) Mode() traffic.Mode {
	return s.mode
}

func (s *Session) Manual() *Allocation {
	return s.manual
}

func (s *Session) Automatic() AutomaticSettings {
	return s.auto
}

// SetMode switches between automatic and manual. Switching is always legal.
func (s *Session) SetMode(m traffic.Mode) error {
	if !m.Valid() {
		return &traffic.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", m)}
	}
	s.mode = m
	return nil
}

// SetAutomaticBounds validates and stores the automatic min/max cycle.
func (s *Session) SetAutomaticBounds(minSeconds, maxSeconds int) error {
	bounds := AutomaticSettings{MinCycleSeconds: minSeconds, MaxCycleSeconds: maxSeconds}
	if err := bounds.Validate(); err != nil {
		return err
	}
	s.auto = bounds
	return nil
}

func (s *Session) EditLane(l traffic.Lane, value int) error {
	return s.manual.EditLane(l, value)
}

func (s *Session) EditTotalCycle(total int) error {
	return s.manual.EditTotalCycle(total)
}

// ReplaceManual swaps in a complete manual split in one step, so a caller
// that knows all three editable lanes is not subject to edit ordering. The
// session is left unchanged when the split is rejected.
func (s *Session) ReplaceManual(total, north, south, east int) error {
	if total < s.opts.MinCycleFloor {
		return &traffic.ValidationError{
			Field:  "total_cycle_time",
			Reason: fmt.Sprintf("must be at least %d seconds, got %d", s.opts.MinCycleFloor, total),
		}
	}
	for _, v := range []struct {
		field string
		value int
	}{{"north", north}, {"south", south}, {"east", east}} {
		if v.value < 0 {
			return &traffic.ValidationError{Field: v.field, Reason: fmt.Sprintf("must not be negative, got %d", v.value)}
		}
	}

	next := NewAllocation(total, north, south, east, s.opts.MinCycleFloor)
	if c := next.Capacity(); c != nil {
		return c
	}
	s.manual = next
	return nil
}

// Candidate builds the record a save would persist for the current mode.
func (s *Session) Candidate(now time.Time) (traffic.CycleRecord, error) {
	rec := traffic.CycleRecord{
		JunctionID:        s.junctionID,
		Status:            s.mode,
		CalculationTimeMS: 0,
	}

	switch s.mode {
	case traffic.ModeAutomatic:
		if err := s.auto.Validate(); err != nil {
			return traffic.CycleRecord{}, err
		}
		rec.AlgorithmVersion = fmt.Sprintf("auto-%d", now.UnixMilli())
	case traffic.ModeManual:
		if err := s.manual.Validate(); err != nil {
			return traffic.CycleRecord{}, err
		}
		total := s.manual.Total()
		rec.TotalCycleTime = &total
		for i, g := range s.manual.Greens() {
			rec.GreenTimes[i] = traffic.IntPtr(g)
		}
		rec.AlgorithmVersion = fmt.Sprintf("manual-%d", now.UnixMilli())
	default:
		return traffic.CycleRecord{}, &traffic.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", s.mode)}
	}
	return rec, nil
}

// SessionState is the serialisable snapshot of a Session.
type SessionState struct {
	JunctionID int64                `json:"junction_id"`
	Mode       traffic.Mode         `json:"mode"`
	Automatic  AutomaticSettings    `json:"automatic"`
	Manual     AllocationState      `json:"manual"`
	Latest     *traffic.CycleRecord `json:"latest_cycle"`
}

func (s *Session) State() SessionState {
	return SessionState{
		JunctionID: s.junctionID,
		Mode:       s.mode,
		Automatic:  s.auto,
		Manual:     s.manual.State(),
		Latest:     s.latest,
	}
}

// RestoreSession rebuilds a session from a snapshot.
func RestoreSession(st SessionState, opts Options) *Session {
	opts = opts.withDefaults()
	mode := st.Mode
	if !mode.Valid() {
		mode = traffic.ModeAutomatic
	}
	return &Session{
		junctionID: st.JunctionID,
		opts:       opts,
		mode:       mode,
		auto:       st.Automatic,
		manual:     restoreAllocation(st.Manual, opts.MinCycleFloor),
		latest:     st.Latest,
	}
}
