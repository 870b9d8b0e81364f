package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"flextraff-service/internal/cache"
	"flextraff-service/internal/domain/traffic"
	"flextraff-service/internal/metrics"
)

type fakeRepo struct {
	mu sync.Mutex

	junctions  map[int64]traffic.Junction
	cycles     []traffic.CycleRecord
	detections []traffic.DetectionEvent
	logs       []traffic.SystemLog
	scanners   map[int64]traffic.Scanner

	nextJunction int64
	nextCycle    int64

	detectionErr error
	writeErr     error
	limits       []int

	// latestFailAfter makes every LatestCycle call after the first n fail.
	latestFailAfter int
	latestCalls     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		junctions: make(map[int64]traffic.Junction),
		scanners:  make(map[int64]traffic.Scanner),
	}
}

func (f *fakeRepo) addJunction(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJunction++
	f.junctions[f.nextJunction] = traffic.Junction{ID: f.nextJunction, Name: name, Status: traffic.JunctionActive}
	return f.nextJunction
}

func (f *fakeRepo) ListJunctions(context.Context) ([]traffic.Junction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]traffic.Junction, 0, len(f.junctions))
	for _, j := range f.junctions {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f *fakeRepo) GetJunction(_ context.Context, id int64) (*traffic.Junction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.junctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: junction %d", traffic.ErrNotFound, id)
	}
	return &j, nil
}

func (f *fakeRepo) CreateJunction(_ context.Context, j *traffic.Junction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJunction++
	j.ID = f.nextJunction
	f.junctions[j.ID] = *j
	return nil
}

func (f *fakeRepo) UpdateJunction(_ context.Context, j *traffic.Junction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.junctions[j.ID]; !ok {
		return fmt.Errorf("%w: junction %d", traffic.ErrNotFound, j.ID)
	}
	f.junctions[j.ID] = *j
	return nil
}

func (f *fakeRepo) DeleteJunction(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.junctions[id]; !ok {
		return fmt.Errorf("%w: junction %d", traffic.ErrNotFound, id)
	}
	delete(f.junctions, id)
	return nil
}

func (f *fakeRepo) LatestCycle(_ context.Context, junctionID int64) (*traffic.CycleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.latestFailAfter > 0 && f.latestCalls > f.latestFailAfter {
		return nil, &traffic.StoreError{Op: "latest cycle", Err: fmt.Errorf("read replica down")}
	}
	var latest *traffic.CycleRecord
	for i := range f.cycles {
		if f.cycles[i].JunctionID == junctionID && (latest == nil || f.cycles[i].ID > latest.ID) {
			rec := f.cycles[i]
			latest = &rec
		}
	}
	return latest, nil
}

func (f *fakeRepo) InsertCycle(_ context.Context, rec *traffic.CycleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return traffic.NewStoreError("insert cycle", f.writeErr)
	}
	f.nextCycle++
	rec.ID = f.nextCycle
	f.cycles = append(f.cycles, *rec)
	return nil
}

func (f *fakeRepo) UpdateCycle(_ context.Context, id int64, rec *traffic.CycleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return traffic.NewStoreError("update cycle", f.writeErr)
	}
	for i := range f.cycles {
		if f.cycles[i].ID == id {
			rec.ID = id
			f.cycles[i] = *rec
			return nil
		}
	}
	return fmt.Errorf("%w: cycle %d", traffic.ErrNotFound, id)
}

func (f *fakeRepo) ListCycles(_ context.Context, junctionID int64, limit int) ([]traffic.CycleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []traffic.CycleRecord
	for i := len(f.cycles) - 1; i >= 0; i-- {
		if f.cycles[i].JunctionID == junctionID {
			out = append(out, f.cycles[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDetections treats the slice as already ordered newest first.
func (f *fakeRepo) ListDetections(_ context.Context, filter traffic.DetectionFilter) ([]traffic.DetectionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, filter.Limit)
	if f.detectionErr != nil {
		return nil, f.detectionErr
	}
	var out []traffic.DetectionEvent
	for _, e := range f.detections {
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

func (f *fakeRepo) ListSystemLogs(_ context.Context, junctionID *int64, limit int) ([]traffic.SystemLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []traffic.SystemLog
	for i := len(f.logs) - 1; i >= 0; i-- {
		l := f.logs[i]
		if junctionID != nil && (l.JunctionID == nil || *l.JunctionID != *junctionID) {
			continue
		}
		out = append(out, l)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) CreateSystemLog(_ context.Context, entry *traffic.SystemLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeRepo) ListScanners(_ context.Context, junctionID *int64) ([]traffic.Scanner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []traffic.Scanner
	for _, sc := range f.scanners {
		if junctionID != nil && (sc.JunctionID == nil || *sc.JunctionID != *junctionID) {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (f *fakeRepo) ToggleScanner(_ context.Context, id int64) (*traffic.Scanner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sc, ok := f.scanners[id]
	if !ok {
		return nil, fmt.Errorf("%w: scanner %d", traffic.ErrNotFound, id)
	}
	sc.Status = sc.Status.Toggled()
	f.scanners[id] = sc
	return &sc, nil
}

func (f *fakeRepo) cycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cycles)
}

type fakeUploader struct {
	key  string
	size int64
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, key string, body io.Reader, size int64, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	u.key = key
	u.size = int64(buf.Len())
	return "https://cdn.example.com/" + key, nil
}

func newTestService(repo *fakeRepo, opts Options) *TrafficService {
	return NewTrafficService(repo, cache.NewLocal(zerolog.Nop()), metrics.New(nil), nil, opts, zerolog.Nop())
}

func int64Ptr(v int64) *int64 {
	return &v
}
