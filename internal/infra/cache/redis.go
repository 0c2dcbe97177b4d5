package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "boardnotice"

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return client, nil
}

func userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, userID)
}

func userPropsKey(userID string) string {
	return userKey(userID) + ":props"
}

func boardHiddenKey(boardID string) string {
	return fmt.Sprintf("%s:board:%s:hidden", keyPrefix, boardID)
}

func boardWarningKey(boardID string) string {
	return fmt.Sprintf("%s:board:%s:warning", keyPrefix, boardID)
}

// Pub/sub channels share the entity key of what changed.
func userChannel(userID string) string {
	return userKey(userID)
}

func boardChannel(boardID string) string {
	return fmt.Sprintf("%s:board:%s", keyPrefix, boardID)
}

func pairs(m map[string]string) []any {
	out := make([]any, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}
