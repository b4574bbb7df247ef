package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory es un cache en proceso con TTL por entrada.
type Memory struct{ c *gocache.Cache }

func NewMemory(defaultTTL time.Duration) *Memory {
	return &Memory{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Memory) Get(k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *Memory) Set(k string, v []byte, ttl time.Duration) { m.c.Set(k, v, ttl) }
func (m *Memory) Delete(k string)                           { m.c.Delete(k) }
