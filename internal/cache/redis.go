package cache

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis implementa Cache sobre un cliente go-redis.
type Redis struct {
	c      *rdb.Client
	prefix string
}

func NewRedis(client *rdb.Client, prefix string) *Redis {
	return &Redis{c: client, prefix: prefix}
}

func (r *Redis) Get(k string) ([]byte, bool) {
	b, err := r.c.Get(context.Background(), r.prefix+k).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Redis) Set(k string, v []byte, ttl time.Duration) {
	_ = r.c.Set(context.Background(), r.prefix+k, v, ttl).Err()
}

func (r *Redis) Delete(k string) { _ = r.c.Del(context.Background(), r.prefix+k).Err() }
