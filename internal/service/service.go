package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"flextraff-service/internal/aggregate"
	"flextraff-service/internal/cache"
	"flextraff-service/internal/cycle"
	"flextraff-service/internal/domain/traffic"
	"flextraff-service/internal/metrics"
)

// Repository is everything the service reads from and writes to the
// database.
type Repository interface {
	cycle.Store
	aggregate.DetectionSource

	ListJunctions(ctx context.Context) ([]traffic.Junction, error)
	GetJunction(ctx context.Context, id int64) (*traffic.Junction, error)
	CreateJunction(ctx context.Context, j *traffic.Junction) error
	UpdateJunction(ctx context.Context, j *traffic.Junction) error
	DeleteJunction(ctx context.Context, id int64) error

	ListCycles(ctx context.Context, junctionID int64, limit int) ([]traffic.CycleRecord, error)

	ListSystemLogs(ctx context.Context, junctionID *int64, limit int) ([]traffic.SystemLog, error)
	CreateSystemLog(ctx context.Context, entry *traffic.SystemLog) error

	ListScanners(ctx context.Context, junctionID *int64) ([]traffic.Scanner, error)
	ToggleScanner(ctx context.Context, id int64) (*traffic.Scanner, error)
}

// ExportUploader stores rendered exports; nil disables uploads.
type ExportUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type Options struct {
	DetectionWindow int
	YellowShare     float64
	DashboardTTL    time.Duration
	DraftTTL        time.Duration
	Cycle           cycle.Options
}

type TrafficService struct {
	repo       Repository
	engine     *cycle.Engine
	aggregator *aggregate.Aggregator
	cache      *cache.Cache
	drafts     *cache.Drafts
	metrics    *metrics.Metrics
	uploader   ExportUploader
	opts       Options
	log        zerolog.Logger
	now        func() time.Time

	draftMu    sync.Mutex
	draftLocks map[string]*draftLock
}

type draftLock struct {
	mu   sync.Mutex
	refs int
}

func NewTrafficService(
	repo Repository,
	c *cache.Cache,
	m *metrics.Metrics,
	uploader ExportUploader,
	opts Options,
	log zerolog.Logger,
) *TrafficService {
	if opts.YellowShare < 0 || opts.YellowShare > 1 {
		opts.YellowShare = aggregate.DefaultYellowShare
	}
	if opts.DraftTTL <= 0 {
		opts.DraftTTL = 2 * time.Hour
	}
	if c == nil {
		c = cache.NewLocal(log)
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &TrafficService{
		repo:       repo,
		engine:     cycle.NewEngine(repo, opts.Cycle, log),
		aggregator: aggregate.NewAggregator(repo, opts.DetectionWindow),
		cache:      c,
		drafts:     cache.NewDrafts(c, opts.DraftTTL),
		metrics:    m,
		uploader:   uploader,
		opts:       opts,
		log:        log,
		now:        time.Now,
		draftLocks: make(map[string]*draftLock),
	}
}

// lockDraft serialises edits to one operator's draft of one junction. An
// entry lives only while some caller holds or waits for it.
func (s *TrafficService) lockDraft(key string) func() {
	s.draftMu.Lock()
	l, ok := s.draftLocks[key]
	if !ok {
		l = &draftLock{}
		s.draftLocks[key] = l
	}
	l.refs++
	s.draftMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.draftMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.draftLocks, key)
		}
		s.draftMu.Unlock()
	}
}

// writeAudit records an operator action in system_logs. Failures are logged
// and never fail the calling operation.
func (s *TrafficService) writeAudit(ctx context.Context, junctionID *int64, component, message string) {
	entry := &traffic.SystemLog{
		JunctionID: junctionID,
		Timestamp:  s.now().UTC(),
		Level:      "INFO",
		Component:  component,
		Message:    message,
	}
	if err := s.repo.CreateSystemLog(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("component", component).Msg("failed to write system log")
	}
}

func (s *TrafficService) invalidateDashboard(ctx context.Context, junctionID int64) {
	if err := s.cache.Delete(ctx, cache.DashboardKey(junctionID), cache.DashboardKey(0)); err != nil {
		s.log.Warn().Err(err).Int64("junction_id", junctionID).Msg("failed to invalidate dashboard cache")
	}
}

// SubscribeCycles streams every CycleEvent published after a save.
func (s *TrafficService) SubscribeCycles(ctx context.Context) *cache.Subscription {
	return s.cache.Subscribe(ctx, cache.CyclesChannel)
}
