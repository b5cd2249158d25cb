package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const userCachePrefix = "vh:user:"

// CachedUserStore is a read-through redis cache in front of another UserStore. Cache
// errors are logged and fall through to the backing store.
type CachedUserStore struct {
	next UserStore
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedUserStore(next UserStore, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *CachedUserStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedUserStore{next: next, rdb: rdb, ttl: ttl, log: log.Named("user-cache")}
}

func userKey(id int64) string {
	return userCachePrefix + strconv.FormatInt(id, 10)
}

func (c *CachedUserStore) FindUser(ctx context.Context, id int64) (User, error) {
	raw, err := c.rdb.Get(ctx, userKey(id)).Bytes()
	switch {
	case err == nil:
		var u User
		if jerr := json.Unmarshal(raw, &u); jerr == nil {
			return u, nil
		}
		c.log.Warn("corrupt cache entry", zap.Int64("user_id", id))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("cache get failed", zap.Int64("user_id", id), zap.Error(err))
	}

	u, err := c.next.FindUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if b, jerr := json.Marshal(u); jerr == nil {
		if serr := c.rdb.Set(ctx, userKey(id), b, c.ttl).Err(); serr != nil {
			c.log.Warn("cache set failed", zap.Int64("user_id", id), zap.Error(serr))
		}
	}
	return u, nil
}

// Invalidate drops the cached entry, for example after the account changed.
func (c *CachedUserStore) Invalidate(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, userKey(id)).Err()
}
