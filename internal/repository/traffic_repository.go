package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flextraff-service/internal/domain/traffic"
)

const (
	defaultLogLimit    = 200
	defaultCycleLimit  = 100
	maxListLimit       = 1000
	defaultDetectLimit = 100
)

type TrafficRepository struct {
	db *gorm.DB
}

func NewTrafficRepository(db *gorm.DB) *TrafficRepository {
	return &TrafficRepository{db: db}
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s %d", traffic.ErrNotFound, kind, id)
}

// Junctions

func (r *TrafficRepository) ListJunctions(ctx context.Context) ([]traffic.Junction, error) {
	var rows []junctionRow
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, traffic.NewStoreError("list junctions", err)
	}
	out := make([]traffic.Junction, 0, len(rows))
	for _, row := range rows {
		out = append(out, junctionFromRow(row))
	}
	return out, nil
}

func (r *TrafficRepository) GetJunction(ctx context.Context, id int64) (*traffic.Junction, error) {
	var row junctionRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("junction", id)
	}
	if err != nil {
		return nil, traffic.NewStoreError("get junction", err)
	}
	j := junctionFromRow(row)
	return &j, nil
}

func (r *TrafficRepository) CreateJunction(ctx context.Context, j *traffic.Junction) error {
	row := junctionToRow(j)
	row.ID = 0
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return traffic.NewStoreError("create junction", err)
	}
	*j = junctionFromRow(row)
	return nil
}

func (r *TrafficRepository) UpdateJunction(ctx context.Context, j *traffic.Junction) error {
	row := junctionToRow(j)
	row.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&junctionRow{ID: j.ID}).
		Select("junction_name", "location", "latitude", "longitude", "status", "algorithm_config", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return traffic.NewStoreError("update junction", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("junction", j.ID)
	}
	updated, err := r.GetJunction(ctx, j.ID)
	if err != nil {
		return err
	}
	*j = *updated
	return nil
}

func (r *TrafficRepository) DeleteJunction(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&junctionRow{}, id)
	if res.Error != nil {
		return traffic.NewStoreError("delete junction", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("junction", id)
	}
	return nil
}

// Cycles

// LatestCycle returns the highest-id record for the junction, nil when the
// junction has no history.
func (r *TrafficRepository) LatestCycle(ctx context.Context, junctionID int64) (*traffic.CycleRecord, error) {
	var row cycleRow
	err := r.db.WithContext(ctx).
		Where("junction_id = ?", junctionID).
		Order("id DESC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, traffic.NewStoreError("latest cycle", err)
	}
	rec := cycleFromRow(row)
	return &rec, nil
}

func (r *TrafficRepository) InsertCycle(ctx context.Context, rec *traffic.CycleRecord) error {
	row := cycleToRow(rec)
	row.ID = 0
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return traffic.NewStoreError("insert cycle", err)
	}
	*rec = cycleFromRow(row)
	return nil
}

// UpdateCycle overwrites every mutable column of the record, nulls included.
func (r *TrafficRepository) UpdateCycle(ctx context.Context, id int64, rec *traffic.CycleRecord) error {
	row := cycleToRow(rec)
	row.ID = id
	row.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&cycleRow{ID: id}).
		Select("status", "total_cycle_time",
			"lane_1_green_time", "lane_2_green_time", "lane_3_green_time", "lane_4_green_time",
			"algorithm_version", "calculation_time_ms", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return traffic.NewStoreError("update cycle", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("cycle", id)
	}
	rec.ID = id
	rec.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *TrafficRepository) ListCycles(ctx context.Context, junctionID int64, limit int) ([]traffic.CycleRecord, error) {
	var rows []cycleRow
	err := r.db.WithContext(ctx).
		Where("junction_id = ?", junctionID).
		Order("id DESC").
		Limit(clampLimit(limit, defaultCycleLimit)).
		Find(&rows).Error
	if err != nil {
		return nil, traffic.NewStoreError("list cycles", err)
	}
	out := make([]traffic.CycleRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, cycleFromRow(row))
	}
	return out, nil
}

// Detections

// ListDetections returns the newest detections first.
func (r *TrafficRepository) ListDetections(ctx context.Context, filter traffic.DetectionFilter) ([]traffic.DetectionEvent, error) {
	query := r.db.WithContext(ctx).Model(&detectionRow{})
	if filter.JunctionID != nil {
		query = query.Where("junction_id = ?", *filter.JunctionID)
	}

	var rows []detectionRow
	err := query.
		Order("detection_timestamp DESC").
		Order("id DESC").
		Limit(clampLimit(filter.Limit, defaultDetectLimit)).
		Find(&rows).Error
	if err != nil {
		return nil, traffic.NewStoreError("list detections", err)
	}
	out := make([]traffic.DetectionEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, detectionFromRow(row))
	}
	return out, nil
}

// InsertDetections bulk-loads detections, used by the seeding tool.
func (r *TrafficRepository) InsertDetections(ctx context.Context, events []traffic.DetectionEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]detectionRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, detectionToRow(e))
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return traffic.NewStoreError("insert detections", err)
	}
	return nil
}

// System logs

func (r *TrafficRepository) ListSystemLogs(ctx context.Context, junctionID *int64, limit int) ([]traffic.SystemLog, error) {
	query := r.db.WithContext(ctx).Model(&systemLogRow{})
	if junctionID != nil {
		query = query.Where("junction_id = ?", *junctionID)
	}

	var rows []systemLogRow
	err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Limit(clampLimit(limit, defaultLogLimit)).
		Find(&rows).Error
	if err != nil {
		return nil, traffic.NewStoreError("list system logs", err)
	}
	out := make([]traffic.SystemLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, systemLogFromRow(row))
	}
	return out, nil
}

func (r *TrafficRepository) CreateSystemLog(ctx context.Context, entry *traffic.SystemLog) error {
	row := systemLogRow{
		JunctionID: entry.JunctionID,
		Timestamp:  entry.Timestamp,
		LogLevel:   entry.Level,
		Component:  entry.Component,
		Message:    entry.Message,
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return traffic.NewStoreError("create system log", err)
	}
	*entry = systemLogFromRow(row)
	return nil
}

// Scanners

func (r *TrafficRepository) ListScanners(ctx context.Context, junctionID *int64) ([]traffic.Scanner, error) {
	query := r.db.WithContext(ctx).Model(&scannerRow{})
	if junctionID != nil {
		query = query.Where("junction_id = ?", *junctionID)
	}

	var rows []scannerRow
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, traffic.NewStoreError("list scanners", err)
	}
	out := make([]traffic.Scanner, 0, len(rows))
	for _, row := range rows {
		out = append(out, scannerFromRow(row))
	}
	return out, nil
}

// ToggleScanner flips a scanner between active and inactive under a row lock.
func (r *TrafficRepository) ToggleScanner(ctx context.Context, id int64) (*traffic.Scanner, error) {
	var out traffic.Scanner
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row scannerRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("scanner", id)
		}
		if err != nil {
			return traffic.NewStoreError("load scanner", err)
		}

		next := traffic.ScannerStatus(row.Status).Toggled()
		if err := tx.Model(&scannerRow{}).Where("id = ?", id).Update("status", string(next)).Error; err != nil {
			return traffic.NewStoreError("toggle scanner", err)
		}
		row.Status = string(next)
		out = scannerFromRow(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
