package telemetry

import (
	"context"
	"fmt"

	"boardnotice/internal/common"
)

// Service exposes recorded telemetry for inspection.
type Service struct {
	sink Sink
}

// NewService creates a new telemetry service.
func NewService(sink Sink) *Service {
	return &Service{sink: sink}
}

// GetEvent retrieves a single event by id.
func (s *Service) GetEvent(ctx context.Context, id string) (*Event, error) {
	ev, err := s.sink.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting telemetry event: %w", err)
	}
	if ev == nil {
		return nil, common.NewNotFoundError("telemetry event", id)
	}
	return ev, nil
}

// ListEvents retrieves events with pagination and filtering.
func (s *Service) ListEvents(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	filter.Normalize()

	events, total, err := s.sink.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing telemetry events: %w", err)
	}

	return &ListResponse{
		Events:   events,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}
