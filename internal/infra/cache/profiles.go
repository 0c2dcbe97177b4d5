package cache

import (
	"context"
	"fmt"
	"time"

	"boardnotice/internal/domain/notice"

	"github.com/redis/go-redis/v9"
)

var _ notice.ProfileStore = (*ProfileCache)(nil)

// ProfileCache is the shared user profile store. Profiles are kept in two
// Redis hashes per user, identity and properties, and loaded through the
// user config client on a miss.
type ProfileCache struct {
	client redis.UniversalClient
	loader notice.UserConfigClient
	ttl    time.Duration
}

// NewProfileCache creates a profile cache. A non-positive ttl defaults to one hour.
func NewProfileCache(client redis.UniversalClient, loader notice.UserConfigClient, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProfileCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

// GetProfile returns the cached profile, loading it on a miss.
// Returns nil, nil if the user does not exist.
func (p *ProfileCache) GetProfile(ctx context.Context, userID string) (*notice.UserProfile, error) {
	pipe := p.client.Pipeline()
	identCmd := pipe.HGetAll(ctx, userKey(userID))
	propsCmd := pipe.HGetAll(ctx, userPropsKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading cached profile: %w", err)
	}

	ident := identCmd.Val()
	if len(ident) > 0 {
		return &notice.UserProfile{
			ID:       ident["id"],
			Username: ident["username"],
			Roles:    notice.ParseRoles(ident["roles"]),
			Props:    propsCmd.Val(),
		}, nil
	}

	user, err := p.loader.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	if err := p.store(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// MergeProperties writes props onto the cached profile and announces the change.
func (p *ProfileCache) MergeProperties(ctx context.Context, userID string, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, userPropsKey(userID), pairs(props)...)
	pipe.Expire(ctx, userPropsKey(userID), p.ttl)
	pipe.Publish(ctx, userChannel(userID), "props")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("merging profile properties: %w", err)
	}
	return nil
}

func (p *ProfileCache) store(ctx context.Context, user *notice.UserProfile) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, userPropsKey(user.ID))
	pipe.HSet(ctx, userKey(user.ID),
		"id", user.ID,
		"username", user.Username,
		"roles", notice.JoinRoles(user.Roles),
	)
	pipe.Expire(ctx, userKey(user.ID), p.ttl)
	if len(user.Props) > 0 {
		pipe.HSet(ctx, userPropsKey(user.ID), pairs(user.Props)...)
		pipe.Expire(ctx, userPropsKey(user.ID), p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("caching profile: %w", err)
	}
	return nil
}
