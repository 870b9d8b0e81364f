package http

import (
	"context"
	"fmt"
	"sync"

	"flextraff-service/internal/domain/traffic"
)

// memRepo is an in-memory service.Repository for handler tests.
type memRepo struct {
	mu sync.Mutex

	junctions  map[int64]traffic.Junction
	cycles     []traffic.CycleRecord
	detections []traffic.DetectionEvent
	logs       []traffic.SystemLog
	scanners   map[int64]traffic.Scanner

	nextJunction int64
	nextCycle    int64
	detectionErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		junctions: make(map[int64]traffic.Junction),
		scanners:  make(map[int64]traffic.Scanner),
	}
}

func (m *memRepo) ListJunctions(context.Context) ([]traffic.Junction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]traffic.Junction, 0, len(m.junctions))
	for id := int64(1); id <= m.nextJunction; id++ {
		if j, ok := m.junctions[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memRepo) GetJunction(_ context.Context, id int64) (*traffic.Junction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.junctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: junction %d", traffic.ErrNotFound, id)
	}
	return &j, nil
}

func (m *memRepo) CreateJunction(_ context.Context, j *traffic.Junction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJunction++
	j.ID = m.nextJunction
	m.junctions[j.ID] = *j
	return nil
}

func (m *memRepo) UpdateJunction(_ context.Context, j *traffic.Junction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.junctions[j.ID]; !ok {
		return fmt.Errorf("%w: junction %d", traffic.ErrNotFound, j.ID)
	}
	m.junctions[j.ID] = *j
	return nil
}

func (m *memRepo) DeleteJunction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.junctions[id]; !ok {
		return fmt.Errorf("%w: junction %d", traffic.ErrNotFound, id)
	}
	delete(m.junctions, id)
	return nil
}

func (m *memRepo) LatestCycle(_ context.Context, junctionID int64) (*traffic.CycleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.cycles) - 1; i >= 0; i-- {
		if m.cycles[i].JunctionID == junctionID {
			rec := m.cycles[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memRepo) InsertCycle(_ context.Context, rec *traffic.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCycle++
	rec.ID = m.nextCycle
	m.cycles = append(m.cycles, *rec)
	return nil
}

func (m *memRepo) UpdateCycle(_ context.Context, id int64, rec *traffic.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cycles {
		if m.cycles[i].ID == id {
			rec.ID = id
			m.cycles[i] = *rec
			return nil
		}
	}
	return fmt.Errorf("%w: cycle %d", traffic.ErrNotFound, id)
}

func (m *memRepo) ListCycles(_ context.Context, junctionID int64, limit int) ([]traffic.CycleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []traffic.CycleRecord
	for i := len(m.cycles) - 1; i >= 0; i-- {
		if m.cycles[i].JunctionID == junctionID {
			out = append(out, m.cycles[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) ListDetections(_ context.Context, filter traffic.DetectionFilter) ([]traffic.DetectionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detectionErr != nil {
		return nil, m.detectionErr
	}
	var out []traffic.DetectionEvent
	for _, e := range m.detections {
		if filter.JunctionID != nil && e.JunctionID != *filter.JunctionID {
			continue
		}
		if len(out) == filter.Limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memRepo) ListSystemLogs(_ context.Context, _ *int64, _ int) ([]traffic.SystemLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]traffic.SystemLog, 0, len(m.logs))
	for i := len(m.logs) - 1; i >= 0; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}

func (m *memRepo) CreateSystemLog(_ context.Context, entry *traffic.SystemLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memRepo) ListScanners(_ context.Context, _ *int64) ([]traffic.Scanner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]traffic.Scanner, 0, len(m.scanners))
	for _, sc := range m.scanners {
		out = append(out, sc)
	}
	return out, nil
}

func (m *memRepo) ToggleScanner(_ context.Context, id int64) (*traffic.Scanner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scanners[id]
	if !ok {
		return nil, fmt.Errorf("%w: scanner %d", traffic.ErrNotFound, id)
	}
	sc.Status = sc.Status.Toggled()
	m.scanners[id] = sc
	return &sc, nil
}
