package service

import (
	"context"
	"time"

	"flextraff-service/internal/aggregate"
	"flextraff-service/internal/cache"
	"flextraff-service/internal/domain/traffic"
)

const recentDetectionsLimit = 10

type Dashboard struct {
	JunctionID        *int64                   `json:"junction_id"`
	Summary           aggregate.LaneSummary    `json:"lane_summary"`
	LightDistribution aggregate.Distribution   `json:"light_distribution"`
	LatestCycle       *traffic.CycleRecord     `json:"latest_cycle"`
	RecentDetections  []traffic.DetectionEvent `json:"recent_detections"`
	GeneratedAt       time.Time                `json:"generated_at"`
}

// Dashboard aggregates the newest detection window for one junction, or all
// junctions when junctionID is nil. The light distribution comes from the
// junction's latest cycle; the all-junctions view always uses the fallback.
func (s *TrafficService) Dashboard(ctx context.Context, junctionID *int64) (*Dashboard, error) {
	var key string
	if junctionID == nil {
		key = cache.DashboardKey(0)
	} else {
		key = cache.DashboardKey(*junctionID)
	}

	if s.opts.DashboardTTL > 0 {
		var cached Dashboard
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
		}
		if found {
			return &cached, nil
		}
	}

	if junctionID != nil {
		if _, err := s.repo.GetJunction(ctx, *junctionID); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	summary, err := s.aggregator.SummarizeRecent(ctx, junctionID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to aggregate detections")
		return nil, err
	}
	s.metrics.ObserveAggregation(time.Since(start))

	dash := &Dashboard{
		JunctionID:  junctionID,
		Summary:     summary,
		GeneratedAt: s.now().UTC(),
	}

	if junctionID != nil {
		latest, err := s.engine.LoadLatest(ctx, *junctionID)
		if err != nil {
			return nil, err
		}
		dash.LatestCycle = latest
		dash.LightDistribution = aggregate.LightDistribution(latest, s.opts.YellowShare)
	} else {
		dash.LightDistribution = aggregate.LightDistribution(nil, s.opts.YellowShare)
	}

	recent, err := s.repo.ListDetections(ctx, traffic.DetectionFilter{Limit: recentDetectionsLimit})
	if err != nil {
		return nil, traffic.DataSourceError("list recent detections", err)
	}
	dash.RecentDetections = recent

	if s.opts.DashboardTTL > 0 {
		if err := s.cache.Set(ctx, key, dash, s.opts.DashboardTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
		}
	}
	return dash, nil
}
