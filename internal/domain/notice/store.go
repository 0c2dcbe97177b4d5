package notice

import "context"

// SnapshotSource provides the read-only state a gate evaluates.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProfileStore is the shared user profile store the gate reads from and
// requests property merges on.
// Implementations live in infra/cache/.
type ProfileStore interface {
	// GetProfile returns nil, nil when the user is unknown.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	// MergeProperties applies the given properties onto the cached profile.
	MergeProperties(ctx context.Context, userID string, props map[string]string) error
}

// BoardStateReader exposes the per-board values computed by the board engine.
type BoardStateReader interface {
	HiddenCardCount(ctx context.Context, boardID string) (int, error)
	CardHiddenWarning(ctx context.Context, boardID string) (bool, error)
}

// BoardStateWriter stores visibility values pushed by the board engine.
type BoardStateWriter interface {
	SetVisibility(ctx context.Context, boardID string, v BoardVisibility) error
}

// UserConfigClient talks to the user configuration endpoint.
// Implementations live in infra/userconfig/ and infra/store/.
type UserConfigClient interface {
	// GetUser returns nil, nil when the user does not exist.
	GetUser(ctx context.Context, userID string) (*UserProfile, error)

	// UpdateUserConfig applies the patch and returns the updated properties.
	// A nil map with a nil error means the endpoint returned no data.
	UpdateUserConfig(ctx context.Context, userID string, patch *UserConfigPatch) (map[string]string, error)
}

// Tracker reports telemetry events. It never fails observably.
type Tracker interface {
	TrackEvent(ctx context.Context, category, action string, props map[string]string)
}

// DismissLimiter throttles dismissals per user.
// Implementations live in infra/ratelimit/.
type DismissLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// PricingLauncher opens the pricing flow.
type PricingLauncher func()

// Announcer relays dismissals to the other live gates of the same user.
type Announcer interface {
	Announce(ctx context.Context, userID string, c Change) error
}

// ChangeFeed notifies about changes to a user's profile or a board's
// visibility. Implementations live in infra/cache/.
type ChangeFeed interface {
	Announcer

	// Subscribe returns a channel receiving every change and a function
	// releasing the subscription. Dismissal changes are never dropped;
	// updates may be coalesced.
	Subscribe(ctx context.Context, userID, boardID string) (<-chan Change, func(), error)
}
