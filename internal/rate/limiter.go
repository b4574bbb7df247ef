// Package rate limita requests por ventana fija sobre redis. El servicio lo
// aplica a sus dos superficies públicas: el check de existencia del
// directorio y el webhook de deprovisioning.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Result es la decisión del limiter para un request.
type Result struct {
	Allowed   bool
	Remaining int64
	// RetryAfter es lo que falta para que la ventana se renueve; solo
	// tiene sentido cuando Allowed es false.
	RetryAfter time.Duration
}

// Limiter decide si el request identificado por key pasa.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter es una ventana fija: una clave por (key, ventana) que se
// incrementa por hit y expira sola al cerrar la ventana.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	win := time.Now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), win.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// el primer hit de la ventana fija la expiración
	if incr.Val() == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
		ttl = l.client.TTL(ctx, redisKey)
	}

	hits := incr.Val()
	res := Result{
		Allowed:   hits <= l.max,
		Remaining: max(l.max-hits, 0),
	}
	if !res.Allowed {
		res.RetryAfter = ttl.Val()
		if res.RetryAfter <= 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}
