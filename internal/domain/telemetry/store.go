package telemetry

import "context"

// Sink defines the contract for persisting telemetry events.
// Implementations live in infra/store/ (e.g., Supabase).
type Sink interface {
	// Insert stores an event. Inserting an event id twice must not create a duplicate.
	Insert(ctx context.Context, ev *Event) error

	// Get retrieves a single event by id. Returns nil, nil if not found.
	Get(ctx context.Context, id string) (*Event, error)

	// List retrieves events, newest first, with pagination and filtering.
	List(ctx context.Context, filter ListFilter) ([]*Event, int, error)
}
