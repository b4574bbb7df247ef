package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/identsync/internal/cache"
)

// Cached decora un Service cacheando los existence checks por email.
// Upsert invalida la entrada del email escrito. Delete no conoce el email,
// así que esa entrada puede quedar stale hasta TTL; por eso el TTL default
// es corto (30s).
type Cached struct {
	inner Service
	cache cache.Cache
	ttl   time.Duration
}

func NewCached(inner Service, c cache.Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{inner: inner, cache: c, ttl: ttl}
}

func existsKey(email string) string { return "dir:exists:" + NormalizeEmail(email) }

func (c *Cached) Exists(ctx context.Context, email string) (ExistsResult, error) {
	if b, ok := c.cache.Get(existsKey(email)); ok {
		var res ExistsResult
		if json.Unmarshal(b, &res) == nil {
			return res, nil
		}
	}
	res, err := c.inner.Exists(ctx, email)
	if err != nil {
		// los errores no se cachean: el caller no debe inferir no-existencia
		return res, err
	}
	if b, err := json.Marshal(res); err == nil {
		c.cache.Set(existsKey(email), b, c.ttl)
	}
	return res, nil
}

func (c *Cached) Upsert(ctx context.Context, rec Record) (bool, error) {
	created, err := c.inner.Upsert(ctx, rec)
	if err == nil {
		c.cache.Delete(existsKey(rec.Email))
	}
	return created, err
}

func (c *Cached) Delete(ctx context.Context, userID string) (int64, error) {
	return c.inner.Delete(ctx, userID)
}

var _ Service = (*Cached)(nil)
