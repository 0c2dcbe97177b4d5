package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"boardnotice/internal/domain/telemetry"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const telemetryTable = "telemetry_events"

var _ telemetry.Sink = (*SupabaseTelemetrySink)(nil)

// SupabaseTelemetrySink stores telemetry events in a Supabase table.
type SupabaseTelemetrySink struct {
	client *supa.Client
}

// NewSupabaseTelemetrySink creates a new Supabase-backed telemetry sink.
func NewSupabaseTelemetrySink(client *supa.Client) *SupabaseTelemetrySink {
	return &SupabaseTelemetrySink{client: client}
}

// eventRow is the internal representation for Supabase PostgREST inserts.
type eventRow struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	UserID     *string           `json:"user_id,omitempty"`
	BoardID    *string           `json:"board_id,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	OccurredAt string            `json:"occurred_at"`
}

// Insert upserts on the event id so retried tasks do not duplicate rows.
func (s *SupabaseTelemetrySink) Insert(ctx context.Context, ev *telemetry.Event) error {
	if _, _, err := s.client.From(telemetryTable).Insert(eventToRow(ev), true, "id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("inserting telemetry event: %w", err)
	}
	return nil
}

func eventToRow(ev *telemetry.Event) eventRow {
	row := eventRow{
		ID:         ev.ID,
		Category:   ev.Category,
		Action:     ev.Action,
		Properties: ev.Properties,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.UserID != "" {
		row.UserID = &ev.UserID
	}
	if ev.BoardID != "" {
		row.BoardID = &ev.BoardID
	}
	return row
}

// Get retrieves a single event by id. Returns nil, nil if not found.
func (s *SupabaseTelemetrySink) Get(ctx context.Context, id string) (*telemetry.Event, error) {
	data, _, err := s.client.From(telemetryTable).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching telemetry event: %w", err)
	}

	var rows []eventRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing telemetry event: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	return rowToEvent(&rows[0]), nil
}

// List retrieves events, newest first, with pagination and filtering.
func (s *SupabaseTelemetrySink) List(ctx context.Context, filter telemetry.ListFilter) ([]*telemetry.Event, int, error) {
	filter.Normalize()
	offset := (filter.Page - 1) * filter.PageSize

	query := s.client.From(telemetryTable).Select("*", "exact", false)

	if filter.Action != "" {
		query = query.Eq("action", filter.Action)
	}
	if filter.UserID != "" {
		query = query.Eq("user_id", filter.UserID)
	}
	if filter.BoardID != "" {
		query = query.Eq("board_id", filter.BoardID)
	}

	query = query.Order("occurred_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing telemetry events: %w", err)
	}

	var rows []eventRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing telemetry events: %w", err)
	}

	events := make([]*telemetry.Event, len(rows))
	for i := range rows {
		events[i] = rowToEvent(&rows[i])
	}

	return events, int(count), nil
}

// rowToEvent converts an eventRow to an Event.
func rowToEvent(row *eventRow) *telemetry.Event {
	ev := &telemetry.Event{
		ID:         row.ID,
		Category:   row.Category,
		Action:     row.Action,
		Properties: row.Properties,
	}
	if row.UserID != nil {
		ev.UserID = *row.UserID
	}
	if row.BoardID != nil {
		ev.BoardID = *row.BoardID
	}
	if t, err := time.Parse(time.RFC3339Nano, row.OccurredAt); err == nil {
		ev.OccurredAt = t
	}
	return ev
}
