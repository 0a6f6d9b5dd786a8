package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/appbase/internal/cache"
)

// Mem es un cache in-process sobre go-cache.
type Mem struct{ c *gocache.Cache }

var _ cache.Client = (*Mem)(nil)

func New(defaultTTL time.Duration) *Mem {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Mem) Get(_ context.Context, k string) (string, error) {
	v, ok := m.c.Get(k)
	if !ok {
		return "", cache.ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *Mem) Set(_ context.Context, k, v string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(k, v, ttl)
	return nil
}

func (m *Mem) Delete(_ context.Context, k string) error { m.c.Delete(k); return nil }
func (m *Mem) Ping(ctx context.Context) error           { return ctx.Err() }
func (m *Mem) Close() error                             { m.c.Flush(); return nil }
