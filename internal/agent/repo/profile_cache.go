package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// CachedProfileLoader is a read-through redis cache in front of another loader.
// Redis failures degrade to a direct load.
type CachedProfileLoader struct {
	next model.ProfileLoader
	rdb  redis.Cmdable
	ttl  time.Duration
}

// NewCachedProfileLoader caches profiles for ttl. A zero ttl or nil client
// disables caching.
func NewCachedProfileLoader(next model.ProfileLoader, rdb redis.Cmdable, ttl time.Duration) *CachedProfileLoader {
	return &CachedProfileLoader{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedProfileLoader) profileKey(agentName string) string {
	return fmt.Sprintf("agent:%s:profile", agentName)
}

func (c *CachedProfileLoader) Load(ctx context.Context, agentName string) (*model.AgentProfile, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return c.next.Load(ctx, agentName)
	}
	key := c.profileKey(agentName)

	if p, ok := c.get(ctx, key); ok {
		return p, nil
	}

	p, err := c.next.Load(ctx, agentName)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(p)
	if err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("failed to marshal agent profile")
		return p, nil
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logx.Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("failed to cache agent profile")
	}
	return p, nil
}

func (c *CachedProfileLoader) get(ctx context.Context, key string) (*model.AgentProfile, bool) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("profile cache unavailable, loading from store")
		}
		return nil, false
	}

	var p model.AgentProfile
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached agent profile")
		return nil, false
	}
	logx.Debug().Str("key", key).Msg("agent profile cache hit")
	return &p, true
}

// Invalidate drops the cached profile so the next Load reads the store.
func (c *CachedProfileLoader) Invalidate(ctx context.Context, agentName string) error {
	if c.rdb == nil {
		return nil
	}
	key := c.profileKey(agentName)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete cached agent profile")
		return errx.WrapRedis(err)
	}
	return nil
}

// InvalidateOn drops the cached profile each time a value arrives on reload,
// so operators can publish prompt edits without waiting for the ttl.
// It returns when ctx is done or reload is closed.
func (c *CachedProfileLoader) InvalidateOn(ctx context.Context, reload <-chan os.Signal, agentName string) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-reload:
			if !ok {
				return
			}
			if err := c.Invalidate(ctx, agentName); err == nil {
				logx.Info().Str("signal", sig.String()).Str("agent", agentName).Msg("agent profile cache invalidated")
			}
		}
	}
}

var _ model.ProfileLoader = (*CachedProfileLoader)(nil)
