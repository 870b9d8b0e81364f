package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"flextraff-service/internal/domain/traffic"
	"flextraff-service/internal/export"
	"flextraff-service/internal/storage"
)

const (
	defaultDetectionsLimit = 50
	exportCycleLimit       = 1000
)

func (s *TrafficService) ListDetections(ctx context.Context, junctionID *int64, limit int) ([]traffic.DetectionEvent, error) {
	if limit <= 0 {
		limit = defaultDetectionsLimit
	}
	events, err := s.repo.ListDetections(ctx, traffic.DetectionFilter{JunctionID: junctionID, Limit: limit})
	if err != nil {
		return nil, traffic.DataSourceError("list detections", err)
	}
	return events, nil
}

func (s *TrafficService) ListLogs(ctx context.Context, junctionID *int64, limit int) ([]traffic.SystemLog, error) {
	logs, err := s.repo.ListSystemLogs(ctx, junctionID, limit)
	if err != nil {
		return nil, traffic.DataSourceError("list system logs", err)
	}
	return logs, nil
}

func (s *TrafficService) ListScanners(ctx context.Context, junctionID *int64) ([]traffic.Scanner, error) {
	scanners, err := s.repo.ListScanners(ctx, junctionID)
	if err != nil {
		return nil, traffic.DataSourceError("list scanners", err)
	}
	return scanners, nil
}

func (s *TrafficService) ToggleScanner(ctx context.Context, id int64, subject string) (*traffic.Scanner, error) {
	scanner, err := s.repo.ToggleScanner(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("scanner_id", id).
		Str("scanner_mac_address", scanner.MACAddress).
		Str("status", string(scanner.Status)).
		Msg("scanner toggled")
	s.writeAudit(ctx, scanner.JunctionID, "scanners",
		fmt.Sprintf("%s set scanner %s to %s", subject, scanner.MACAddress, scanner.Status))
	return scanner, nil
}

// ListCycles returns a junction's cycle history, newest first.
func (s *TrafficService) ListCycles(ctx context.Context, junctionID int64, limit int) ([]traffic.CycleRecord, error) {
	if _, err := s.repo.GetJunction(ctx, junctionID); err != nil {
		return nil, err
	}
	cycles, err := s.repo.ListCycles(ctx, junctionID, limit)
	if err != nil {
		return nil, traffic.DataSourceError("list cycles", err)
	}
	return cycles, nil
}

type ExportResult struct {
	FileName string
	Data     []byte
	URL      string
}

// ExportCycles renders the junction's cycle history as XLSX and, when an
// uploader is configured, stores a copy. Upload failures are logged and the
// workbook is still returned.
func (s *TrafficService) ExportCycles(ctx context.Context, junctionID int64) (*ExportResult, error) {
	junction, err := s.repo.GetJunction(ctx, junctionID)
	if err != nil {
		return nil, err
	}
	cycles, err := s.repo.ListCycles(ctx, junctionID, exportCycleLimit)
	if err != nil {
		return nil, traffic.DataSourceError("list cycles", err)
	}

	data, err := export.CyclesWorkbook(*junction, cycles)
	if err != nil {
		return nil, fmt.Errorf("render cycle export: %w", err)
	}

	now := s.now()
	result := &ExportResult{
		FileName: fmt.Sprintf("junction-%d-cycles-%s.xlsx", junctionID, now.UTC().Format("20060102-150405")),
		Data:     data,
	}

	if s.uploader != nil {
		key := storage.ExportKey(junctionID, now)
		url, err := s.uploader.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), export.ContentType)
		switch {
		case err == nil:
			result.URL = url
		case errors.Is(err, storage.ErrNotConfigured):
		default:
			s.log.Warn().Err(err).Int64("junction_id", junctionID).Str("key", key).Msg("failed to upload cycle export")
		}
	}

	s.log.Info().
		Int64("junction_id", junctionID).
		Int("cycles", len(cycles)).
		Str("url", result.URL).
		Msg("cycle history exported")
	return result, nil
}
