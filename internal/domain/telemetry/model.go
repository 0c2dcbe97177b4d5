package telemetry

import "time"

// Event is a single telemetry event reported by the notice gate.
type Event struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	UserID     string            `json:"user_id,omitempty"`
	BoardID    string            `json:"board_id,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent builds an event from a tracker call. The user_id and board_id
// properties are lifted into their own fields.
func NewEvent(id, category, action string, props map[string]string, at time.Time) *Event {
	ev := &Event{
		ID:         id,
		Category:   category,
		Action:     action,
		OccurredAt: at.UTC(),
	}

	rest := make(map[string]string, len(props))
	for k, v := range props {
		switch k {
		case "user_id":
			ev.UserID = v
		case "board_id":
			ev.BoardID = v
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		ev.Properties = rest
	}
	return ev
}

// ListFilter defines pagination and filtering options for listing events.
type ListFilter struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Action   string `form:"action"`
	UserID   string `form:"user_id"`
	BoardID  string `form:"board_id"`
}

// Normalize applies the default page and page size.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// ListResponse wraps a paginated list of events.
type ListResponse struct {
	Events   []*Event `json:"events"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}
