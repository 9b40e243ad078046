package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores completions as plain string keys with a TTL.
type Redis struct {
	rdb redis.Cmdable
	ns  string
	ttl time.Duration
}

type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	Namespace string
	// TTL of each entry; 0 keeps entries until evicted by Redis.
	TTL time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	return NewRedisWithClient(rdb, cfg.Namespace, cfg.TTL)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb redis.Cmdable, namespace string, ttl time.Duration) *Redis {
	if namespace == "" {
		namespace = "yandexgpt"
	}
	return &Redis{rdb: rdb, ns: namespace, ttl: ttl}
}

func (r *Redis) key(k Key) string {
	return fmt.Sprintf("%s:completion:%s", r.ns, k.Digest())
}

func (r *Redis) Get(ctx context.Context, key Key) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, completion string) error {
	return r.rdb.Set(ctx, r.key(key), completion, r.ttl).Err()
}
