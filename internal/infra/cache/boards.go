package cache

import (
	"context"
	"errors"
	"fmt"

	"boardnotice/internal/domain/notice"

	"github.com/redis/go-redis/v9"
)

var (
	_ notice.BoardStateReader = (*BoardState)(nil)
	_ notice.BoardStateWriter = (*BoardState)(nil)
)

// BoardState keeps the hidden card values of each board in Redis.
type BoardState struct {
	client redis.UniversalClient
}

// NewBoardState creates a Redis-backed board state store.
func NewBoardState(client redis.UniversalClient) *BoardState {
	return &BoardState{client: client}
}

// HiddenCardCount returns the number of hidden cards, 0 when unknown.
func (b *BoardState) HiddenCardCount(ctx context.Context, boardID string) (int, error) {
	n, err := b.client.Get(ctx, boardHiddenKey(boardID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading hidden card count: %w", err)
	}
	return max(n, 0), nil
}

// CardHiddenWarning reports whether the last action on the board hid a card.
func (b *BoardState) CardHiddenWarning(ctx context.Context, boardID string) (bool, error) {
	v, err := b.client.Get(ctx, boardWarningKey(boardID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading hidden card warning: %w", err)
	}
	return v == "1", nil
}

// SetVisibility stores both values and announces the change.
func (b *BoardState) SetVisibility(ctx context.Context, boardID string, v notice.BoardVisibility) error {
	if v.HiddenCards < 0 {
		return fmt.Errorf("hidden card count must not be negative, got %d", v.HiddenCards)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, boardHiddenKey(boardID), v.HiddenCards, 0)
	if v.CardHiddenWarning {
		pipe.Set(ctx, boardWarningKey(boardID), "1", 0)
	} else {
		pipe.Del(ctx, boardWarningKey(boardID))
	}
	pipe.Publish(ctx, boardChannel(boardID), "visibility")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing board visibility: %w", err)
	}
	return nil
}
