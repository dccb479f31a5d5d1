package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrProfileNotFound is returned when no profile exists for a subject.
var ErrProfileNotFound = errors.New("identity: profile not found")

// ProfileLookup resolves the email of a subject for audit enrichment.
type ProfileLookup interface {
	Email(ctx context.Context, subjectID string) (string, error)
}

// ProfileFunc adapts a function to ProfileLookup.
type ProfileFunc func(ctx context.Context, subjectID string) (string, error)

func (f ProfileFunc) Email(ctx context.Context, subjectID string) (string, error) {
	return f(ctx, subjectID)
}

// Chain consults lookups in order and returns the first non-empty email.
// The last error is returned only when every lookup failed or came back empty.
func Chain(lookups ...ProfileLookup) ProfileLookup {
	return ProfileFunc(func(ctx context.Context, subjectID string) (string, error) {
		lastErr := ErrProfileNotFound
		for _, l := range lookups {
			if l == nil {
				continue
			}
			email, err := l.Email(ctx, subjectID)
			if err != nil {
				lastErr = err
				continue
			}
			if email = strings.TrimSpace(email); email != "" {
				return email, nil
			}
		}
		return "", lastErr
	})
}

const profileKeyPrefix = "staffdesk:profile:email:"

// CachedProfiles fronts another lookup with a Redis TTL cache.
// Cache errors degrade to the underlying lookup.
type CachedProfiles struct {
	rdb  redis.Cmdable
	next ProfileLookup
	ttl  time.Duration
}

// NewCachedProfiles wraps next with a cache stored in rdb.
func NewCachedProfiles(rdb redis.Cmdable, next ProfileLookup, ttl time.Duration) *CachedProfiles {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedProfiles{rdb: rdb, next: next, ttl: ttl}
}

func (c *CachedProfiles) Email(ctx context.Context, subjectID string) (string, error) {
	key := profileCacheKey(subjectID)
	if c.rdb != nil {
		if email, err := c.rdb.Get(ctx, key).Result(); err == nil && email != "" {
			return email, nil
		}
	}
	email, err := c.next.Email(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if c.rdb != nil && email != "" {
		_ = c.rdb.Set(ctx, key, email, c.ttl).Err()
	}
	return email, nil
}

func profileCacheKey(subjectID string) string {
	return profileKeyPrefix + strings.TrimSpace(subjectID)
}
