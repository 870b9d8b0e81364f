package traffic

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"flextraff-service/internal/utils"
)

// Lane is one of the four fixed signal slots at a junction. The numeric value
// is the persisted lane_number / lane_N_green_time slot and must never change.
type Lane int

const (
	LaneNorth Lane = 1
	LaneSouth Lane = 2
	LaneEast  Lane = 3
	LaneWest  Lane = 4
)

// Lanes lists every lane in persisted order.
var Lanes = [4]Lane{LaneNorth, LaneSouth, LaneEast, LaneWest}

// EditableLanes are the lanes an operator sets directly in manual mode.
var EditableLanes = [3]Lane{LaneNorth, LaneSouth, LaneEast}

func (l Lane) Valid() bool {
	return l >= LaneNorth && l <= LaneWest
}

// Editable reports whether operators set the lane directly. West is derived.
func (l Lane) Editable() bool {
	return slices.Contains(EditableLanes[:], l)
}

// Index returns the zero-based slot of the lane.
func (l Lane) Index() int {
	return int(l) - 1
}

func (l Lane) String() string {
	switch l {
	case LaneNorth:
		return "north"
	case LaneSouth:
		return "south"
	case LaneEast:
		return "east"
	case LaneWest:
		return "west"
	default:
		return "lane(" + strconv.Itoa(int(l)) + ")"
	}
}

// Label is the capitalised name shown on the dashboard.
func (l Lane) Label() string {
	switch l {
	case LaneNorth:
		return "North"
	case LaneSouth:
		return "South"
	case LaneEast:
		return "East"
	case LaneWest:
		return "West"
	default:
		return strconv.Itoa(int(l))
	}
}

func (l Lane) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return json.Marshal(int(l))
	}
	return json.Marshal(l.String())
}

func (l *Lane) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*l = Lane(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = 0
		return nil
	}
	parsed, err := ParseLane(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLane accepts a lane name ("north") or its slot number ("1").
func ParseLane(raw string) (Lane, error) {
	token := utils.NormalizeToken(raw)
	switch token {
	case "north":
		return LaneNorth, nil
	case "south":
		return LaneSouth, nil
	case "east":
		return LaneEast, nil
	case "west":
		return LaneWest, nil
	}
	if n, err := strconv.Atoi(token); err == nil && Lane(n).Valid() {
		return Lane(n), nil
	}
	return 0, &ValidationError{Field: "lane", Reason: fmt.Sprintf("unknown lane %q", raw)}
}

type Mode string

const (
	ModeAutomatic Mode = "automatic"
	ModeManual    Mode = "manual"
)

func (m Mode) Valid() bool {
	return m == ModeAutomatic || m == ModeManual
}

func ParseMode(raw string) (Mode, error) {
	m := Mode(utils.NormalizeToken(raw))
	if !m.Valid() {
		return "", &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", raw)}
	}
	return m, nil
}

type JunctionStatus string

const (
	JunctionActive      JunctionStatus = "active"
	JunctionMaintenance JunctionStatus = "maintenance"
	JunctionInactive    JunctionStatus = "inactive"
)

func ParseJunctionStatus(raw string) (JunctionStatus, error) {
	s := JunctionStatus(utils.NormalizeToken(raw))
	switch s {
	case "":
		return JunctionActive, nil
	case JunctionActive, JunctionMaintenance, JunctionInactive:
		return s, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown junction status %q", raw)}
}

type Junction struct {
	ID              int64           `json:"id"`
	Name            string          `json:"junction_name"`
	Location        string          `json:"location"`
	Latitude        *float64        `json:"latitude"`
	Longitude       *float64        `json:"longitude"`
	Status          JunctionStatus  `json:"status"`
	AlgorithmConfig json.RawMessage `json:"algorithm_config"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type DetectionEvent struct {
	ID          int64     `json:"id"`
	JunctionID  int64     `json:"junction_id"`
	Lane        int       `json:"lane_number"`
	VehicleType string    `json:"vehicle_type"`
	DetectedAt  time.Time `json:"detection_timestamp"`
}

// DetectionFilter selects a newest-first window of detections. A nil
// JunctionID means all junctions.
type DetectionFilter struct {
	JunctionID *int64
	Limit      int
}

// CycleRecord is one persisted signal-timing configuration. Green times are
// indexed by Lane.Index().
type CycleRecord struct {
	ID                int64     `json:"id"`
	JunctionID        int64     `json:"junction_id"`
	Status            Mode      `json:"status"`
	TotalCycleTime    *int      `json:"total_cycle_time"`
	GreenTimes        [4]*int   `json:"-"`
	AlgorithmVersion  string    `json:"algorithm_version"`
	CalculationTimeMS int       `json:"calculation_time_ms"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GreenTime returns the stored green time for a lane, nil when unset.
func (r CycleRecord) GreenTime(l Lane) *int {
	if !l.Valid() {
		return nil
	}
	return r.GreenTimes[l.Index()]
}

// HasGreenTimes reports whether any lane carries a numeric green time.
func (r CycleRecord) HasGreenTimes() bool {
	for _, g := range r.GreenTimes {
		if g != nil {
			return true
		}
	}
	return false
}

func (r CycleRecord) MarshalJSON() ([]byte, error) {
	type alias CycleRecord
	return json.Marshal(struct {
		alias
		Lane1 *int `json:"lane_1_green_time"`
		Lane2 *int `json:"lane_2_green_time"`
		Lane3 *int `json:"lane_3_green_time"`
		Lane4 *int `json:"lane_4_green_time"`
	}{
		alias: alias(r),
		Lane1: r.GreenTimes[0],
		Lane2: r.GreenTimes[1],
		Lane3: r.GreenTimes[2],
		Lane4: r.GreenTimes[3],
	})
}

func (r *CycleRecord) UnmarshalJSON(data []byte) error {
	type alias CycleRecord
	aux := struct {
		*alias
		Lane1 *int `json:"lane_1_green_time"`
		Lane2 *int `json:"lane_2_green_time"`
		Lane3 *int `json:"lane_3_green_time"`
		Lane4 *int `json:"lane_4_green_time"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.GreenTimes = [4]*int{aux.Lane1, aux.Lane2, aux.Lane3, aux.Lane4}
	return nil
}

type SystemLog struct {
	ID         int64     `json:"id"`
	JunctionID *int64    `json:"junction_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"log_level"`
	Component  string    `json:"component"`
	Message    string    `json:"message"`
}

type ScannerStatus string

const (
	ScannerActive   ScannerStatus = "active"
	ScannerInactive ScannerStatus = "inactive"
)

// Toggled flips active to inactive; any other status becomes active.
func (s ScannerStatus) Toggled() ScannerStatus {
	if s == ScannerActive {
		return ScannerInactive
	}
	return ScannerActive
}

type Scanner struct {
	ID            int64         `json:"id"`
	JunctionID    *int64        `json:"junction_id,omitempty"`
	MACAddress    string        `json:"scanner_mac_address"`
	Position      string        `json:"scanner_position"`
	LastHeartbeat *time.Time    `json:"last_heartbeat"`
	Status        ScannerStatus `json:"status"`
}

// IntPtr is a small helper for building nullable green times.
func IntPtr(v int) *int {
	return &v
}
