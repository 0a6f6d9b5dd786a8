// Package cache abstrae un key/value con TTL para lookups calientes
// (ej: cuenta conectada -> app). Backends: memory (go-cache) y redis.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica que la key no existe o expiró.
var ErrNotFound = errors.New("cache: key not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Client define las operaciones de cache.
type Client interface {
	// Get retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)
	// Set con ttl 0 usa el TTL por defecto del backend.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
