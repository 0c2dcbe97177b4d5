package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeTrackEvent is the asynq task type for recording telemetry events.
const TaskTypeTrackEvent = "telemetry:track"

// NewTrackEventTask creates a new asynq task carrying the event.
func NewTrackEventTask(ev *Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeTrackEvent, payload), nil
}

// ParseTrackEventPayload deserializes the task payload.
func ParseTrackEventPayload(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	if ev.Category == "" || ev.Action == "" {
		return nil, fmt.Errorf("telemetry event %q is missing category or action", ev.ID)
	}
	return &ev, nil
}
