package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/appbase/internal/cache"
)

// Cache implementa cache.Client sobre go-redis con prefijo de keys.
type Cache struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

var _ cache.Client = (*Cache)(nil)

func New(client *rdb.Client, prefix string, defaultTTL time.Duration) *Cache {
	return &Cache{c: client, prefix: prefix, defaultTTL: defaultTTL}
}

// Dial crea el cliente y verifica la conexión.
func Dial(ctx context.Context, addr string, db int) (*rdb.Client, error) {
	client := rdb.NewClient(&rdb.Options{Addr: addr, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return client, nil
}

func (r *Cache) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Cache) Get(ctx context.Context, k string) (string, error) {
	v, err := r.c.Get(ctx, r.key(k)).Result()
	if errors.Is(err, rdb.Nil) {
		return "", cache.ErrNotFound
	}
	return v, err
}

func (r *Cache) Set(ctx context.Context, k, v string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.c.Set(ctx, r.key(k), v, ttl).Err()
}

func (r *Cache) Delete(ctx context.Context, k string) error { return r.c.Del(ctx, r.key(k)).Err() }
func (r *Cache) Ping(ctx context.Context) error             { return r.c.Ping(ctx).Err() }
func (r *Cache) Close() error                               { return r.c.Close() }
