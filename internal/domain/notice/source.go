package notice

import (
	"context"
	"fmt"
)

var _ SnapshotSource = (*StoreSource)(nil)

// StoreSource assembles a Snapshot for one user and board from the shared stores.
type StoreSource struct {
	profiles ProfileStore
	boards   BoardStateReader
	userID   string
	boardID  string
}

// NewStoreSource creates a snapshot source. An empty userID means no current user.
func NewStoreSource(profiles ProfileStore, boards BoardStateReader, userID, boardID string) *StoreSource {
	return &StoreSource{
		profiles: profiles,
		boards:   boards,
		userID:   userID,
		boardID:  boardID,
	}
}

// Snapshot reads the current user, the board visibility, and the snooze state.
func (s *StoreSource) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	if s.userID != "" {
		user, err := s.profiles.GetProfile(ctx, s.userID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("loading profile %s: %w", s.userID, err)
		}
		snap.User = user
		snap.Snooze = user.Snooze()
	}

	hidden, err := s.boards.HiddenCardCount(ctx, s.boardID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading hidden card count: %w", err)
	}
	warning, err := s.boards.CardHiddenWarning(ctx, s.boardID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading hidden card warning: %w", err)
	}
	snap.Board = BoardVisibility{HiddenCards: hidden, CardHiddenWarning: warning}

	return snap, nil
}
