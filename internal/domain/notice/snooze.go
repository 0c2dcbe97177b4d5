package notice

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Snoozer persists "snoozed until" timestamps to the user's profile.
// It implements the dismiss action of both notifications.
type Snoozer struct {
	users    UserConfigClient
	profiles ProfileStore
	now      func() time.Time
}

// NewSnoozer creates a snoozer. A nil clock defaults to time.Now.
func NewSnoozer(users UserConfigClient, profiles ProfileStore, now func() time.Time) *Snoozer {
	if now == nil {
		now = time.Now
	}
	return &Snoozer{
		users:    users,
		profiles: profiles,
		now:      now,
	}
}

// SnoozeCardLimit snoozes the hidden cards notification.
func (s *Snoozer) SnoozeCardLimit(ctx context.Context, user *UserProfile) (map[string]string, bool) {
	return s.Snooze(ctx, user, KindCardsHidden)
}

// SnoozeHiddenWarning snoozes the hidden card warning.
func (s *Snoozer) SnoozeHiddenWarning(ctx context.Context, user *UserProfile) (map[string]string, bool) {
	return s.Snooze(ctx, user, KindCardHiddenWarning)
}

// Snooze sets the property for kind to now + SnoozeDuration through the user
// config endpoint and merges the returned properties into the profile store.
// It reports whether the store was updated. Without a user it does nothing.
// Failures are logged and dropped; the caller never sees an error.
func (s *Snoozer) Snooze(ctx context.Context, user *UserProfile, kind Kind) (map[string]string, bool) {
	if user == nil {
		return nil, false
	}

	until := s.now().Add(SnoozeDuration).UnixMilli()
	patch := &UserConfigPatch{
		UpdatedFields: map[string]string{
			snoozeProp(kind): strconv.FormatInt(until, 10),
		},
	}

	props, err := s.users.UpdateUserConfig(ctx, user.ID, patch)
	if err != nil {
		slog.Warn("snooze update failed",
			"user_id", user.ID,
			"kind", kind,
			"error", err,
		)
		return nil, false
	}
	if props == nil {
		slog.Warn("snooze update returned no data", "user_id", user.ID, "kind", kind)
		return nil, false
	}

	if err := s.profiles.MergeProperties(ctx, user.ID, props); err != nil {
		slog.Warn("merging snoozed properties failed",
			"user_id", user.ID,
			"kind", kind,
			"error", err,
		)
		return nil, false
	}

	slog.Info("notification snoozed",
		"user_id", user.ID,
		"kind", kind,
		"until", until,
	)
	return props, true
}
