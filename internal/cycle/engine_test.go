package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flextraff-service/internal/domain/traffic"
)

type fakeStore struct {
	mu      sync.Mutex
	records []traffic.CycleRecord
	nextID  int64

	latestErr error
	writeErr  error
	// latestFailAfter makes every LatestCycle call after the first n fail.
	latestFailAfter int
	latestCalls     int
	inserts   int
	updates   int

	// entered and block let a test hold a write open.
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeStore) LatestCycle(_ context.Context, junctionID int64) (*traffic.CycleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if f.latestFailAfter > 0 && f.latestCalls > f.latestFailAfter {
		return nil, errors.New("read replica down")
	}
	var latest *traffic.CycleRecord
	for i := range f.records {
		if f.records[i].JunctionID != junctionID {
			continue
		}
		if latest == nil || f.records[i].ID > latest.ID {
			rec := f.records[i]
			latest = &rec
		}
	}
	return latest, nil
}

func (f *fakeStore) InsertCycle(_ context.Context, rec *traffic.CycleRecord) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeStore) UpdateCycle(_ context.Context, id int64, rec *traffic.CycleRecord) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.writeErr != nil {
		return f.writeErr
	}
	for i := range f.records {
		if f.records[i].ID == id {
			rec.ID = id
			f.records[i] = *rec
			return nil
		}
	}
	return traffic.ErrNotFound
}

func (f *fakeStore) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts + f.updates
}

func newTestEngine(store Store) *Engine {
	e := NewEngine(store, DefaultOptions(), zerolog.Nop())
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

func TestOpenWithoutHistoryUsesDefaults(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	s, err := e.Open(context.Background(), 1)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Mode() != traffic.ModeAutomatic {
		t.Errorf("mode = %q, want automatic", s.Mode())
	}
	if got, want := s.Manual().Greens(), [4]int{15, 15, 15, 15}; got != want {
		t.Errorf("greens = %v, want %v", got, want)
	}
	if s.Manual().Total() != 60 {
		t.Errorf("total = %d, want 60", s.Manual().Total())
	}
	if s.State().Latest != nil {
		t.Errorf("latest = %+v, want nil", s.State().Latest)
	}
}

func TestOpenRecomputesWestFromManualRecord(t *testing.T) {
	store := &fakeStore{nextID: 1, records: []traffic.CycleRecord{{
		ID:             1,
		JunctionID:     7,
		Status:         traffic.ModeManual,
		TotalCycleTime: traffic.IntPtr(80),
		GreenTimes:     [4]*int{traffic.IntPtr(20), traffic.IntPtr(20), nil, traffic.IntPtr(99)},
	}}}
	e := newTestEngine(store)

	s, err := e.Open(context.Background(), 7)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Mode() != traffic.ModeManual {
		t.Errorf("mode = %q, want manual", s.Mode())
	}
	if got, want := s.Manual().Greens(), [4]int{20, 20, 0, 40}; got != want {
		t.Errorf("greens = %v, want %v", got, want)
	}
}

func TestOpenWrapsDataSourceError(t *testing.T) {
	e := newTestEngine(&fakeStore{latestErr: errors.New("connection refused")})
	if _, err := e.Open(context.Background(), 1); !errors.Is(err, traffic.ErrDataSource) {
		t.Fatalf("Open() error = %v, want ErrDataSource", err)
	}
}

func TestLoadLatestIsIdempotent(t *testing.T) {
	store := &fakeStore{nextID: 2, records: []traffic.CycleRecord{
		{ID: 1, JunctionID: 3, Status: traffic.ModeAutomatic, AlgorithmVersion: "auto-1"},
		{ID: 2, JunctionID: 3, Status: traffic.ModeAutomatic, AlgorithmVersion: "auto-2"},
	}}
	e := newTestEngine(store)

	first, err := e.LoadLatest(context.Background(), 3)
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	second, err := e.LoadLatest(context.Background(), 3)
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	if first.ID != 2 || second.ID != first.ID || second.AlgorithmVersion != first.AlgorithmVersion {
		t.Errorf("LoadLatest() = %+v then %+v", first, second)
	}
	if store.calls() != 0 {
		t.Errorf("LoadLatest() wrote to the store")
	}
}

func TestSaveManualAfterAutomaticInsertsThenUpdates(t *testing.T) {
	store := &fakeStore{nextID: 1, records: []traffic.CycleRecord{
		{ID: 1, JunctionID: 5, Status: traffic.ModeAutomatic, AlgorithmVersion: "auto-1"},
	}}
	e := newTestEngine(store)
	ctx := context.Background()

	s, err := e.Open(ctx, 5)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SetMode(traffic.ModeManual); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if err := s.EditLane(traffic.LaneNorth, 20); err != nil {
		t.Fatalf("EditLane() error = %v", err)
	}

	res, err := e.Save(ctx, s)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Action != ActionInsert {
		t.Errorf("first action = %q, want insert", res.Action)
	}
	if res.Record == nil || res.Record.ID != 2 {
		t.Fatalf("first record = %+v, want id 2", res.Record)
	}
	if res.Record.AlgorithmVersion != "manual-1700000000000" {
		t.Errorf("algorithm_version = %q", res.Record.AlgorithmVersion)
	}
	if got := *res.Record.GreenTime(traffic.LaneWest); got != 10 {
		t.Errorf("west = %d, want 10", got)
	}

	if err := s.EditLane(traffic.LaneEast, 5); err != nil {
		t.Fatalf("EditLane() error = %v", err)
	}
	res, err = e.Save(ctx, s)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if res.Action != ActionUpdate || res.Record.ID != 2 {
		t.Errorf("second save = %q id %d, want update id 2", res.Action, res.Record.ID)
	}
	if got := *res.Record.GreenTime(traffic.LaneWest); got != 20 {
		t.Errorf("west = %d, want 20", got)
	}
	if len(store.records) != 2 {
		t.Errorf("records = %d, want 2", len(store.records))
	}
	if s.State().Latest.ID != 2 {
		t.Errorf("session latest id = %d, want 2", s.State().Latest.ID)
	}
}

func TestSaveCommittedWhenReloadFails(t *testing.T) {
	store := &fakeStore{latestFailAfter: 2}
	e := newTestEngine(store)
	ctx := context.Background()

	s, err := e.Open(ctx, 7)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SetMode(traffic.ModeManual); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if err := s.EditLane(traffic.LaneSouth, 25); err != nil {
		t.Fatalf("EditLane() error = %v", err)
	}

	res, err := e.Save(ctx, s)
	if err != nil {
		t.Fatalf("Save() error = %v, want nil after a successful write", err)
	}
	if store.latestCalls != 3 {
		t.Fatalf("LatestCycle calls = %d, want 3", store.latestCalls)
	}
	if res.Action != ActionInsert {
		t.Errorf("action = %q, want insert", res.Action)
	}
	if res.Record == nil || res.Record.ID != 1 {
		t.Fatalf("record = %+v, want id 1", res.Record)
	}
	if got := *res.Record.GreenTime(traffic.LaneSouth); got != 25 {
		t.Errorf("south = %d, want 25", got)
	}
	if len(store.records) != 1 {
		t.Errorf("stored records = %d, want 1", len(store.records))
	}
	if s.State().Latest == nil || s.State().Latest.ID != 1 {
		t.Errorf("session latest = %+v, want id 1", s.State().Latest)
	}
	if s.Mode() != traffic.ModeManual {
		t.Errorf("mode = %q, want manual", s.Mode())
	}
}

func TestSaveAutomaticStoresNullTimings(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store)
	s, _ := e.Open(context.Background(), 9)

	res, err := e.Save(context.Background(), s)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Action != ActionInsert {
		t.Errorf("action = %q, want insert", res.Action)
	}
	if res.Record.TotalCycleTime != nil || res.Record.HasGreenTimes() {
		t.Errorf("automatic record carries timings: %+v", res.Record)
	}
	if res.Record.AlgorithmVersion != "auto-1700000000000" {
		t.Errorf("algorithm_version = %q", res.Record.AlgorithmVersion)
	}
}

func TestSaveRejectedBeforeStore(t *testing.T) {
	t.Run("capacity exceeded", func(t *testing.T) {
		store := &fakeStore{}
		e := newTestEngine(store)
		s, _ := e.Open(context.Background(), 1)
		_ = s.SetMode(traffic.ModeManual)
		_ = s.EditTotalCycle(30)

		_, err := e.Save(context.Background(), s)
		if !errors.Is(err, traffic.ErrCapacityExceeded) {
			t.Fatalf("Save() error = %v, want ErrCapacityExceeded", err)
		}
		if store.calls() != 0 {
			t.Errorf("store writes = %d, want 0", store.calls())
		}
	})

	t.Run("invalid automatic bounds", func(t *testing.T) {
		store := &fakeStore{}
		e := newTestEngine(store)
		s, _ := e.Open(context.Background(), 1)
		if err := s.SetAutomaticBounds(90, 30); !errors.Is(err, traffic.ErrValidation) {
			t.Fatalf("SetAutomaticBounds() error = %v, want ErrValidation", err)
		}
		if got := s.Automatic(); got.MinCycleSeconds != 30 || got.MaxCycleSeconds != 90 {
			t.Errorf("bounds changed to %+v", got)
		}
	})
}

func TestSavePersistenceErrorLeavesSessionUntouched(t *testing.T) {
	store := &fakeStore{writeErr: errors.New("disk full")}
	e := newTestEngine(store)
	s, _ := e.Open(context.Background(), 4)
	_ = s.SetMode(traffic.ModeManual)
	_ = s.EditLane(traffic.LaneNorth, 25)
	before := s.State()

	_, err := e.Save(context.Background(), s)
	if !errors.Is(err, traffic.ErrPersistence) {
		t.Fatalf("Save() error = %v, want ErrPersistence", err)
	}
	after := s.State()
	if after.Mode != before.Mode || after.Manual != before.Manual || after.Latest != nil {
		t.Errorf("session changed: before %+v after %+v", before, after)
	}
}

func TestConcurrentSaveRejected(t *testing.T) {
	store := &fakeStore{entered: make(chan struct{}), block: make(chan struct{})}
	e := newTestEngine(store)
	first, _ := e.Open(context.Background(), 2)
	second, _ := e.Open(context.Background(), 2)

	done := make(chan error, 1)
	go func() {
		_, err := e.Save(context.Background(), first)
		done <- err
	}()
	<-store.entered

	if _, err := e.Save(context.Background(), second); !errors.Is(err, traffic.ErrSaveInProgress) {
		t.Errorf("concurrent Save() error = %v, want ErrSaveInProgress", err)
	}

	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("first Save() error = %v", err)
	}

	store.entered = nil
	if _, err := e.Save(context.Background(), second); err != nil {
		t.Errorf("Save() after release error = %v", err)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	s, _ := e.Open(context.Background(), 11)
	_ = s.SetMode(traffic.ModeManual)
	_ = s.EditTotalCycle(90)
	_ = s.EditLane(traffic.LaneSouth, 40)

	restored := e.Restore(s.State())
	if restored.JunctionID() != 11 || restored.Mode() != traffic.ModeManual {
		t.Errorf("restored = %d/%q", restored.JunctionID(), restored.Mode())
	}
	if restored.Manual().Greens() != s.Manual().Greens() {
		t.Errorf("greens = %v, want %v", restored.Manual().Greens(), s.Manual().Greens())
	}
}

func TestReplaceManual(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	s, _ := e.Open(context.Background(), 1)

	if err := s.ReplaceManual(60, 40, 10, 5); err != nil {
		t.Fatalf("ReplaceManual() error = %v", err)
	}
	if got, want := s.Manual().Greens(), [4]int{40, 10, 5, 5}; got != want {
		t.Errorf("greens = %v, want %v", got, want)
	}

	before := s.Manual().Greens()
	tests := []struct {
		name    string
		total   int
		lanes   [3]int
		wantErr error
	}{
		{name: "below floor", total: 5, lanes: [3]int{1, 1, 1}, wantErr: traffic.ErrValidation},
		{name: "negative lane", total: 60, lanes: [3]int{-1, 1, 1}, wantErr: traffic.ErrValidation},
		{name: "over capacity", total: 30, lanes: [3]int{20, 20, 0}, wantErr: traffic.ErrCapacityExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ReplaceManual(tt.total, tt.lanes[0], tt.lanes[1], tt.lanes[2])
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReplaceManual() error = %v, want %v", err, tt.wantErr)
			}
			if s.Manual().Greens() != before {
				t.Errorf("greens changed to %v", s.Manual().Greens())
			}
		})
	}
}
