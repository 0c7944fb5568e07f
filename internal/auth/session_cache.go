package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "session:"

// SessionCache keeps issued tokens in Redis so logout can revoke them
// before expiry. A missing entry means the session was revoked.
type SessionCache struct {
	Client *redis.Client
}

func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{Client: client}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
}

// Save stores the token until its natural expiry.
func (c *SessionCache) Save(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Set(ctx, sessionKey(userID), token, ttl).Err()
}

// Revoke drops the session entry.
func (c *SessionCache) Revoke(ctx context.Context, userID int64) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, sessionKey(userID)).Err()
}

// IsActive reports whether the exact token is still the live session.
func (c *SessionCache) IsActive(ctx context.Context, userID int64, token string) (bool, error) {
	if c.Client == nil {
		return true, nil
	}
	stored, err := c.Client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == token, nil
}
