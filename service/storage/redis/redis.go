package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"vhrealtime/tools/errs"
)

type RedisManager struct {
	client *redis.Client
}

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Open dials redis and pings it once.
func Open(ctx context.Context, c Config) (*RedisManager, error) {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping "+c.Addr)
	}
	return &RedisManager{client: rdb}, nil
}

func (m *RedisManager) Client() *redis.Client {
	return m.client
}

func (m *RedisManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
