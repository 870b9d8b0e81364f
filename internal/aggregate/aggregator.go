package aggregate

import (
	"context"
	"math"

	"flextraff-service/internal/domain/traffic"
)

// DefaultWindow is the number of most recent detections summarised.
const DefaultWindow = 500

// FallbackDistribution is reported when no numeric cycle is available.
var FallbackDistribution = Distribution{Green: 45, Yellow: 15, Red: 40}

// DefaultYellowShare is the fraction of non-green time shown as yellow.
const DefaultYellowShare = 0.10

type LaneCount struct {
	Lane  string `json:"lane"`
	Count int    `json:"cars"`
}

type LaneSummary struct {
	JunctionID *int64       `json:"junction_id,omitempty"`
	Lanes      [4]LaneCount `json:"lanes"`
	Total      int          `json:"total"`
	Ignored    int          `json:"ignored"`
}

// Count returns the bucket for a lane.
func (s LaneSummary) Count(l traffic.Lane) int {
	if !l.Valid() {
		return 0
	}
	return s.Lanes[l.Index()].Count
}

// Distribution holds whole-number percentages that always sum to 100.
type Distribution struct {
	Green    int  `json:"green"`
	Yellow   int  `json:"yellow"`
	Red      int  `json:"red"`
	Fallback bool `json:"fallback"`
}

// Summarize partitions events into the four lane buckets. Events with a lane
// number outside 1..4 are counted as ignored and never bucketed.
func Summarize(events []traffic.DetectionEvent, junctionID *int64) LaneSummary {
	summary := LaneSummary{JunctionID: junctionID}
	for _, l := range traffic.Lanes {
		summary.Lanes[l.Index()].Lane = l.Label()
	}

	for _, e := range events {
		lane := traffic.Lane(e.Lane)
		if !lane.Valid() {
			summary.Ignored++
			continue
		}
		summary.Lanes[lane.Index()].Count++
		summary.Total++
	}
	return summary
}

// LightDistribution derives green/yellow/red shares from a cycle. Green is
// sum(green)/total_cycle_time; the rest is split by yellowShare.
func LightDistribution(cycle *traffic.CycleRecord, yellowShare float64) Distribution {
	if cycle == nil || !cycle.HasGreenTimes() || cycle.TotalCycleTime == nil || *cycle.TotalCycleTime <= 0 {
		d := FallbackDistribution
		d.Fallback = true
		return d
	}
	if yellowShare < 0 || yellowShare > 1 {
		yellowShare = DefaultYellowShare
	}

	green := 0
	for _, g := range cycle.GreenTimes {
		if g != nil && *g > 0 {
			green += *g
		}
	}

	greenPct := int(math.Round(float64(green) / float64(*cycle.TotalCycleTime) * 100))
	if greenPct > 100 {
		greenPct = 100
	}
	rest := 100 - greenPct
	yellowPct := int(math.Round(float64(rest) * yellowShare))

	return Distribution{
		Green:  greenPct,
		Yellow: yellowPct,
		Red:    rest - yellowPct,
	}
}

// DetectionSource is the read side of the detection store.
type DetectionSource interface {
	ListDetections(ctx context.Context, filter traffic.DetectionFilter) ([]traffic.DetectionEvent, error)
}

type Aggregator struct {
	source DetectionSource
	window int
}

func NewAggregator(source DetectionSource, window int) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{source: source, window: window}
}

// SummarizeRecent reads the newest window of detections and summarises them.
// Source failures surface as ErrDataSource, never as zero counts.
func (a *Aggregator) SummarizeRecent(ctx context.Context, junctionID *int64) (LaneSummary, error) {
	events, err := a.source.ListDetections(ctx, traffic.DetectionFilter{
		JunctionID: junctionID,
		Limit:      a.window,
	})
	if err != nil {
		return LaneSummary{}, traffic.DataSourceError("list detections", err)
	}
	return Summarize(events, junctionID), nil
}
