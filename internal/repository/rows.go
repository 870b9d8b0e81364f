package repository

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"flextraff-service/internal/domain/traffic"
)

func (junctionRow) TableName() string {
	return "traffic_junctions"
}

func (cycleRow) TableName() string {
	return "traffic_cycles"
}

func (detectionRow) TableName() string {
	return "vehicle_detections"
}

func (systemLogRow) TableName() string {
	return "system_logs"
}

func (scannerRow) TableName() string {
	return "scanners"
}

type junctionRow struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	JunctionName    string `gorm:"not null"`
	Location        string
	Latitude        *float64
	Longitude       *float64
	Status          string         `gorm:"not null"`
	AlgorithmConfig datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type cycleRow struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	JunctionID        int64  `gorm:"not null;index"`
	Status            string `gorm:"not null"`
	TotalCycleTime    *int
	Lane1GreenTime    *int `gorm:"column:lane_1_green_time"`
	Lane2GreenTime    *int `gorm:"column:lane_2_green_time"`
	Lane3GreenTime    *int `gorm:"column:lane_3_green_time"`
	Lane4GreenTime    *int `gorm:"column:lane_4_green_time"`
	AlgorithmVersion  string
	CalculationTimeMS int `gorm:"column:calculation_time_ms"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type detectionRow struct {
	ID                 int64 `gorm:"primaryKey"`
	JunctionID         int64
	LaneNumber         int
	VehicleType        string
	DetectionTimestamp time.Time
}

type systemLogRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	JunctionID *int64
	Timestamp  time.Time `gorm:"column:timestamp"`
	LogLevel   string
	Component  string
	Message    string
}

type scannerRow struct {
	ID                int64 `gorm:"primaryKey"`
	JunctionID        *int64
	ScannerMacAddress string
	ScannerPosition   string
	LastHeartbeat     *time.Time
	Status            string
}

func junctionFromRow(row junctionRow) traffic.Junction {
	j := traffic.Junction{
		ID:        row.ID,
		Name:      row.JunctionName,
		Location:  row.Location,
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Status:    traffic.JunctionStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.AlgorithmConfig) > 0 {
		j.AlgorithmConfig = json.RawMessage(row.AlgorithmConfig)
	}
	return j
}

func junctionToRow(j *traffic.Junction) junctionRow {
	row := junctionRow{
		ID:           j.ID,
		JunctionName: j.Name,
		Location:     j.Location,
		Latitude:     j.Latitude,
		Longitude:    j.Longitude,
		Status:       string(j.Status),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	if len(j.AlgorithmConfig) > 0 {
		row.AlgorithmConfig = datatypes.JSON(j.AlgorithmConfig)
	}
	return row
}

func cycleFromRow(row cycleRow) traffic.CycleRecord {
	return traffic.CycleRecord{
		ID:                row.ID,
		JunctionID:        row.JunctionID,
		Status:            traffic.Mode(row.Status),
		TotalCycleTime:    row.TotalCycleTime,
		GreenTimes:        [4]*int{row.Lane1GreenTime, row.Lane2GreenTime, row.Lane3GreenTime, row.Lane4GreenTime},
		AlgorithmVersion:  row.AlgorithmVersion,
		CalculationTimeMS: row.CalculationTimeMS,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

func cycleToRow(rec *traffic.CycleRecord) cycleRow {
	return cycleRow{
		ID:                rec.ID,
		JunctionID:        rec.JunctionID,
		Status:            string(rec.Status),
		TotalCycleTime:    rec.TotalCycleTime,
		Lane1GreenTime:    rec.GreenTimes[0],
		Lane2GreenTime:    rec.GreenTimes[1],
		Lane3GreenTime:    rec.GreenTimes[2],
		Lane4GreenTime:    rec.GreenTimes[3],
		AlgorithmVersion:  rec.AlgorithmVersion,
		CalculationTimeMS: rec.CalculationTimeMS,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func detectionFromRow(row detectionRow) traffic.DetectionEvent {
	return traffic.DetectionEvent{
		ID:          row.ID,
		JunctionID:  row.JunctionID,
		Lane:        row.LaneNumber,
		VehicleType: row.VehicleType,
		DetectedAt:  row.DetectionTimestamp,
	}
}

func detectionToRow(e traffic.DetectionEvent) detectionRow {
	return detectionRow{
		ID:                 e.ID,
		JunctionID:         e.JunctionID,
		LaneNumber:         e.Lane,
		VehicleType:        e.VehicleType,
		DetectionTimestamp: e.DetectedAt,
	}
}

func systemLogFromRow(row systemLogRow) traffic.SystemLog {
	return traffic.SystemLog{
		ID:         row.ID,
		JunctionID: row.JunctionID,
		Timestamp:  row.Timestamp,
		Level:      row.LogLevel,
		Component:  row.Component,
		Message:    row.Message,
	}
}

func scannerFromRow(row scannerRow) traffic.Scanner {
	return traffic.Scanner{
		ID:            row.ID,
		JunctionID:    row.JunctionID,
		MACAddress:    row.ScannerMacAddress,
		Position:      row.ScannerPosition,
		LastHeartbeat: row.LastHeartbeat,
		Status:        traffic.ScannerStatus(row.Status),
	}
}
