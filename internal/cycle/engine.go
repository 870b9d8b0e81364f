package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flextraff-service/internal/domain/traffic"
)

// Store is the cycle record store the engine reads and writes.
type Store interface {
	LatestCycle(ctx context.Context, junctionID int64) (*traffic.CycleRecord, error)
	InsertCycle(ctx context.Context, rec *traffic.CycleRecord) error
	UpdateCycle(ctx context.Context, id int64, rec *traffic.CycleRecord) error
}

type SaveResult struct {
	Action Action               `json:"action"`
	Record *traffic.CycleRecord `json:"cycle"`
}

type Engine struct {
	store Store
	opts  Options
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.Mutex
	saving map[int64]struct{}
}

func NewEngine(store Store, opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		opts:   opts.withDefaults(),
		log:    log,
		now:    time.Now,
		saving: make(map[int64]struct{}),
	}
}

// LoadLatest returns the most recent record for a junction, nil if none.
func (e *Engine) LoadLatest(ctx context.Context, junctionID int64) (*traffic.CycleRecord, error) {
	rec, err := e.store.LatestCycle(ctx, junctionID)
	if err != nil {
		return nil, traffic.DataSourceError("load latest cycle", err)
	}
	return rec, nil
}

// Open starts a session seeded from the junction's latest record.
func (e *Engine) Open(ctx context.Context, junctionID int64) (*Session, error) {
	latest, err := e.LoadLatest(ctx, junctionID)
	if err != nil {
		return nil, err
	}
	return NewSession(junctionID, latest, e.opts), nil
}

// Restore rebuilds a session snapshot with the engine's options.
func (e *Engine) Restore(st SessionState) *Session {
	return RestoreSession(st, e.opts)
}

// Save persists the session through the upsert policy and refreshes the
// session from the store. Invalid sessions never reach the store, write
// failures leave the session untouched, and a second save for a junction
// already being saved fails with ErrSaveInProgress. Once the write succeeds
// the save is committed: a failed re-read falls back to the written record.
func (e *Engine) Save(ctx context.Context, s *Session) (SaveResult, error) {
	candidate, err := s.Candidate(e.now())
	if err != nil {
		return SaveResult{}, err
	}

	release, ok := e.acquire(s.junctionID)
	if !ok {
		return SaveResult{}, traffic.ErrSaveInProgress
	}
	defer release()

	latest, err := e.store.LatestCycle(ctx, s.junctionID)
	if err != nil {
		return SaveResult{}, traffic.PersistenceError("load latest cycle", err)
	}

	action := Decide(latest, candidate.Status)
	switch action {
	case ActionUpdate:
		candidate.ID = latest.ID
		err = e.store.UpdateCycle(ctx, latest.ID, &candidate)
	default:
		err = e.store.InsertCycle(ctx, &candidate)
	}
	if err != nil {
		e.log.Error().
			Err(err).
			Int64("junction_id", s.junctionID).
			Str("mode", string(candidate.Status)).
			Str("action", string(action)).
			Msg("failed to save cycle")
		return SaveResult{}, traffic.PersistenceError(string(action)+" cycle", err)
	}

	e.log.Info().
		Int64("junction_id", s.junctionID).
		Str("mode", string(candidate.Status)).
		Str("action", string(action)).
		Str("algorithm_version", candidate.AlgorithmVersion).
		Int("min_cycle_seconds", s.auto.MinCycleSeconds).
		Int("max_cycle_seconds", s.auto.MaxCycleSeconds).
		Msg("cycle configuration saved")

	refreshed, err := e.LoadLatest(ctx, s.junctionID)
	if err != nil || refreshed == nil {
		e.log.Warn().
			Err(err).
			Int64("junction_id", s.junctionID).
			Int64("cycle_id", candidate.ID).
			Msg("saved cycle but failed to reload latest")
		refreshed = &candidate
	}
	result := SaveResult{Action: action, Record: refreshed}
	s.load(refreshed)
	return result, nil
}

func (e *Engine) acquire(junctionID int64) (func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.saving[junctionID]; busy {
		return nil, false
	}
	e.saving[junctionID] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.saving, junctionID)
		e.mu.Unlock()
	}, true
}
