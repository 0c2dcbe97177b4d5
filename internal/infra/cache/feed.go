package cache

import (
	"context"
	"fmt"
	"strings"

	"boardnotice/internal/domain/notice"

	"github.com/redis/go-redis/v9"
)

var _ notice.ChangeFeed = (*Feed)(nil)

// Feed turns Redis pub/sub messages about a user or board into changes.
type Feed struct {
	client redis.UniversalClient
}

// NewFeed creates a Redis pub/sub change feed.
func NewFeed(client redis.UniversalClient) *Feed {
	return &Feed{client: client}
}

// Announce publishes c on the user channel.
func (f *Feed) Announce(ctx context.Context, userID string, c notice.Change) error {
	if err := f.client.Publish(ctx, userChannel(userID), encodeChange(c)).Err(); err != nil {
		return fmt.Errorf("publishing %s change: %w", c.Type, err)
	}
	return nil
}

// Subscribe listens on the board channel and, when userID is set, the user channel.
func (f *Feed) Subscribe(ctx context.Context, userID, boardID string) (<-chan notice.Change, func(), error) {
	channels := []string{boardChannel(boardID)}
	if userID != "" {
		channels = append(channels, userChannel(userID))
	}

	ps := f.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribing to %v: %w", channels, err)
	}

	out := make(chan notice.Change, 8)
	released := make(chan struct{})
	msgs := ps.Channel()
	go func() {
		defer close(out)
		for msg := range msgs {
			c := decodeChange(msg.Payload)
			if c.Type == notice.ChangeUpdated {
				select {
				case out <- c:
				default:
				}
				continue
			}
			select {
			case out <- c:
			case <-released:
				return
			}
		}
	}()

	release := func() {
		close(released)
		_ = ps.Close()
	}
	return out, release, nil
}

// encodeChange renders dismissal changes as "<type>:<kind>".
func encodeChange(c notice.Change) string {
	if c.Type == notice.ChangeUpdated || c.Kind == "" {
		return string(notice.ChangeUpdated)
	}
	return string(c.Type) + ":" + string(c.Kind)
}

// decodeChange reads a channel payload. Anything that is not a well formed
// dismissal is an update.
func decodeChange(payload string) notice.Change {
	typ, rawKind, ok := strings.Cut(payload, ":")
	if !ok {
		return notice.Change{Type: notice.ChangeUpdated}
	}
	kind, ok := notice.ParseKind(rawKind)
	if !ok {
		return notice.Change{Type: notice.ChangeUpdated}
	}

	switch t := notice.ChangeType(typ); t {
	case notice.ChangeDismissed, notice.ChangeRestored:
		return notice.Change{Type: t, Kind: kind}
	}
	return notice.Change{Type: notice.ChangeUpdated}
}
