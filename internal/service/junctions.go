package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flextraff-service/internal/domain/traffic"
)

type JunctionInput struct {
	Name            string          `json:"junction_name"`
	Location        string          `json:"location"`
	Latitude        *float64        `json:"latitude"`
	Longitude       *float64        `json:"longitude"`
	Status          string          `json:"status"`
	AlgorithmConfig json.RawMessage `json:"algorithm_config"`
}

func (in JunctionInput) toJunction() (traffic.Junction, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return traffic.Junction{}, &traffic.ValidationError{Field: "junction_name", Reason: "is required"}
	}
	status, err := traffic.ParseJunctionStatus(in.Status)
	if err != nil {
		return traffic.Junction{}, err
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return traffic.Junction{}, &traffic.ValidationError{Field: "latitude", Reason: fmt.Sprintf("must be within [-90, 90], got %v", *in.Latitude)}
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return traffic.Junction{}, &traffic.ValidationError{Field: "longitude", Reason: fmt.Sprintf("must be within [-180, 180], got %v", *in.Longitude)}
	}

	var config json.RawMessage
	trimmed := bytes.TrimSpace(in.AlgorithmConfig)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if !json.Valid(trimmed) {
			return traffic.Junction{}, &traffic.ValidationError{Field: "algorithm_config", Reason: "must be valid JSON"}
		}
		config = json.RawMessage(trimmed)
	}

	return traffic.Junction{
		Name:            name,
		Location:        strings.TrimSpace(in.Location),
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Status:          status,
		AlgorithmConfig: config,
	}, nil
}

func (s *TrafficService) ListJunctions(ctx context.Context) ([]traffic.Junction, error) {
	return s.repo.ListJunctions(ctx)
}

func (s *TrafficService) GetJunction(ctx context.Context, id int64) (*traffic.Junction, error) {
	return s.repo.GetJunction(ctx, id)
}

func (s *TrafficService) CreateJunction(ctx context.Context, in JunctionInput) (*traffic.Junction, error) {
	j, err := in.toJunction()
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateJunction(ctx, &j); err != nil {
		s.log.Error().Err(err).Str("junction_name", j.Name).Msg("failed to create junction")
		return nil, err
	}

	s.log.Info().Int64("junction_id", j.ID).Str("junction_name", j.Name).Msg("junction created")
	s.writeAudit(ctx, &j.ID, "junctions", fmt.Sprintf("junction %q created", j.Name))
	return &j, nil
}

func (s *TrafficService) UpdateJunction(ctx context.Context, id int64, in JunctionInput) (*traffic.Junction, error) {
	j, err := in.toJunction()
	if err != nil {
		return nil, err
	}
	j.ID = id
	if err := s.repo.UpdateJunction(ctx, &j); err != nil {
		return nil, err
	}

	s.invalidateDashboard(ctx, id)
	s.writeAudit(ctx, &id, "junctions", fmt.Sprintf("junction %q updated (status %s)", j.Name, j.Status))
	return &j, nil
}

func (s *TrafficService) DeleteJunction(ctx context.Context, id int64) error {
	if err := s.repo.DeleteJunction(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx, id)
	s.log.Info().Int64("junction_id", id).Msg("junction deleted")
	s.writeAudit(ctx, nil, "junctions", fmt.Sprintf("junction %d deleted", id))
	return nil
}
