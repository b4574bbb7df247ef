// Package cache define un cache byte-oriented con TTL.
// Implementaciones: memoria (go-cache) y Redis.
package cache

import "time"

type Cache interface {
	Get(key string) (value []byte, ok bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
