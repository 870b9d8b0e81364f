package service

import (
	"context"
	"errors"
	"fmt"

	"flextraff-service/internal/cache"
	"flextraff-service/internal/cycle"
	"flextraff-service/internal/domain/traffic"
)

// CycleEvent is published on the cycles channel after every successful save.
type CycleEvent struct {
	Type   string               `json:"type"`
	Action cycle.Action         `json:"action"`
	Cycle  *traffic.CycleRecord `json:"cycle"`
}

// SaveOutcome is the result of a save: what the upsert did and the refreshed
// editor state.
type SaveOutcome struct {
	Action   cycle.Action         `json:"action"`
	Cycle    *traffic.CycleRecord `json:"cycle"`
	Controls cycle.SessionState   `json:"controls"`
}

// CycleRequest is a complete configuration saved in one call.
type CycleRequest struct {
	Mode            string `json:"mode"`
	MinCycleSeconds *int   `json:"min_cycle_seconds"`
	MaxCycleSeconds *int   `json:"max_cycle_seconds"`
	TotalCycleTime  *int   `json:"total_cycle_time"`
	North           *int   `json:"north"`
	South           *int   `json:"south"`
	East            *int   `json:"east"`
}

// session loads the operator's draft or opens a new one from the store.
func (s *TrafficService) session(ctx context.Context, junctionID int64, key string) (*cycle.Session, error) {
	var st cycle.SessionState
	found, err := s.drafts.Load(ctx, key, &st)
	if err != nil {
		s.log.Warn().Err(err).Str("draft", key).Msg("discarding unreadable draft")
		found = false
	}
	if found && st.JunctionID == junctionID {
		return s.engine.Restore(st), nil
	}

	if _, err := s.repo.GetJunction(ctx, junctionID); err != nil {
		return nil, err
	}
	return s.engine.Open(ctx, junctionID)
}

func (s *TrafficService) storeDraft(ctx context.Context, key string, sess *cycle.Session) {
	if err := s.drafts.Store(ctx, key, sess.State()); err != nil {
		s.log.Warn().Err(err).Str("draft", key).Msg("failed to store draft")
	}
}

// editControls applies fn to the operator's draft. The draft is stored even
// when fn fails, since a rejected edit can still leave a capacity condition
// that must block the next save.
func (s *TrafficService) editControls(ctx context.Context, junctionID int64, subject string, fn func(*cycle.Session) error) (cycle.SessionState, error) {
	key := cache.DraftKey(junctionID, subject)
	unlock := s.lockDraft(key)
	defer unlock()

	sess, err := s.session(ctx, junctionID, key)
	if err != nil {
		return cycle.SessionState{}, err
	}
	editErr := fn(sess)
	s.storeDraft(ctx, key, sess)
	return sess.State(), editErr
}

func (s *TrafficService) OpenControls(ctx context.Context, junctionID int64, subject string) (cycle.SessionState, error) {
	return s.editControls(ctx, junctionID, subject, func(*cycle.Session) error { return nil })
}

func (s *TrafficService) SetMode(ctx context.Context, junctionID int64, subject, rawMode string) (cycle.SessionState, error) {
	mode, err := traffic.ParseMode(rawMode)
	if err != nil {
		return cycle.SessionState{}, err
	}
	return s.editControls(ctx, junctionID, subject, func(sess *cycle.Session) error {
		return sess.SetMode(mode)
	})
}

func (s *TrafficService) SetAutomaticBounds(ctx context.Context, junctionID int64, subject string, minSeconds, maxSeconds int) (cycle.SessionState, error) {
	return s.editControls(ctx, junctionID, subject, func(sess *cycle.Session) error {
		return sess.SetAutomaticBounds(minSeconds, maxSeconds)
	})
}

func (s *TrafficService) EditTotalCycle(ctx context.Context, junctionID int64, subject string, total int) (cycle.SessionState, error) {
	return s.editControls(ctx, junctionID, subject, func(sess *cycle.Session) error {
		return sess.EditTotalCycle(total)
	})
}

func (s *TrafficService) EditLane(ctx context.Context, junctionID int64, subject, rawLane string, value int) (cycle.SessionState, error) {
	lane, err := traffic.ParseLane(rawLane)
	if err != nil {
		return cycle.SessionState{}, err
	}
	return s.editControls(ctx, junctionID, subject, func(sess *cycle.Session) error {
		return sess.EditLane(lane, value)
	})
}

func (s *TrafficService) DiscardControls(ctx context.Context, junctionID int64, subject string) error {
	key := cache.DraftKey(junctionID, subject)
	unlock := s.lockDraft(key)
	defer unlock()
	return s.drafts.Discard(ctx, key)
}

// SaveControls persists the operator's draft through the upsert policy.
func (s *TrafficService) SaveControls(ctx context.Context, junctionID int64, subject string) (*SaveOutcome, error) {
	key := cache.DraftKey(junctionID, subject)
	unlock := s.lockDraft(key)
	defer unlock()

	sess, err := s.session(ctx, junctionID, key)
	if err != nil {
		return nil, err
	}
	outcome, err := s.save(ctx, sess, subject)
	if err != nil {
		return nil, err
	}
	s.storeDraft(ctx, key, sess)
	return outcome, nil
}

// SaveCycle saves a complete configuration without touching any draft. The
// session starts from the junction's latest record, so omitted manual fields
// keep their current values.
func (s *TrafficService) SaveCycle(ctx context.Context, junctionID int64, subject string, req CycleRequest) (*SaveOutcome, error) {
	mode, err := traffic.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetJunction(ctx, junctionID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Open(ctx, junctionID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetMode(mode); err != nil {
		return nil, err
	}

	switch mode {
	case traffic.ModeAutomatic:
		bounds := sess.Automatic()
		if req.MinCycleSeconds != nil {
			bounds.MinCycleSeconds = *req.MinCycleSeconds
		}
		if req.MaxCycleSeconds != nil {
			bounds.MaxCycleSeconds = *req.MaxCycleSeconds
		}
		if err := sess.SetAutomaticBounds(bounds.MinCycleSeconds, bounds.MaxCycleSeconds); err != nil {
			return nil, err
		}
	case traffic.ModeManual:
		current := sess.Manual()
		pick := func(v *int, l traffic.Lane) int {
			if v != nil {
				return *v
			}
			return current.Green(l)
		}
		total := current.Total()
		if req.TotalCycleTime != nil {
			total = *req.TotalCycleTime
		}
		err := sess.ReplaceManual(total,
			pick(req.North, traffic.LaneNorth),
			pick(req.South, traffic.LaneSouth),
			pick(req.East, traffic.LaneEast))
		if err != nil {
			s.recordSaveFailure(err)
			return nil, err
		}
	}

	return s.save(ctx, sess, subject)
}

func (s *TrafficService) save(ctx context.Context, sess *cycle.Session, subject string) (*SaveOutcome, error) {
	junctionID := sess.JunctionID()
	res, err := s.engine.Save(ctx, sess)
	if err != nil {
		s.recordSaveFailure(err)
		return nil, err
	}

	mode := sess.Mode()
	s.metrics.ObserveSave(string(mode), string(res.Action))
	s.invalidateDashboard(ctx, junctionID)
	s.writeAudit(ctx, &junctionID, "cycle-engine",
		fmt.Sprintf("%s saved %s configuration (%s)", subject, mode, res.Action))

	if res.Record != nil {
		event := CycleEvent{Type: "cycle_saved", Action: res.Action, Cycle: res.Record}
		if err := s.cache.Publish(ctx, cache.CyclesChannel, event); err != nil {
			s.log.Warn().Err(err).Int64("junction_id", junctionID).Msg("failed to publish cycle event")
		}
	}

	return &SaveOutcome{
		Action:   res.Action,
		Cycle:    res.Record,
		Controls: sess.State(),
	}, nil
}

func (s *TrafficService) recordSaveFailure(err error) {
	reason := "internal"
	switch {
	case errors.Is(err, traffic.ErrCapacityExceeded):
		reason = "capacity_exceeded"
	case errors.Is(err, traffic.ErrValidation):
		reason = "validation"
	case errors.Is(err, traffic.ErrSaveInProgress):
		reason = "save_in_progress"
	case errors.Is(err, traffic.ErrPersistence):
		reason = "persistence"
	case errors.Is(err, traffic.ErrDataSource):
		reason = "data_source"
	}
	s.metrics.ObserveSaveFailure(reason)
}
