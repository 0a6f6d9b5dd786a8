// Package tenantcache resuelve y cachea lookups calientes de tenant:
// cuenta conectada -> app dueña, y la definición de la app.
//
// El repositorio es la fuente de verdad; el cache (memory o redis) solo
// evita idas a la base en cada webhook o login. Lookups concurrentes de la
// misma key se colapsan con singleflight.
package tenantcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/appbase/internal/cache"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

const DefaultTTL = 5 * time.Minute

type Resolver struct {
	apps  repository.AppRepository
	cache cache.Client
	ttl   time.Duration
	sf    singleflight.Group
}

// New crea el resolver. cache puede ser nil (sin cache).
func New(apps repository.AppRepository, c cache.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{apps: apps, cache: c, ttl: ttl}
}

func accountKey(accountID string) string { return "acct:" + accountID }
func appKey(appID string) string         { return "app:" + appID }

// AccountOwner devuelve la app dueña de una cuenta conectada activa.
// ErrNotFound si no existe o fue desautorizada; los negativos no se cachean.
func (r *Resolver) AccountOwner(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", repository.ErrInvalidInput
	}
	key := accountKey(accountID)
	if v, ok := r.get(ctx, key); ok {
		return v, nil
	}
	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		appID, err := r.apps.AccountOwner(ctx, accountID)
		if err != nil {
			return "", err
		}
		r.set(ctx, key, appID)
		return appID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// App devuelve la app (con su política de monetización).
func (r *Resolver) App(ctx context.Context, appID string) (*repository.App, error) {
	if appID == "" {
		return nil, repository.ErrInvalidInput
	}
	key := appKey(appID)
	if v, ok := r.get(ctx, key); ok {
		var a repository.App
		if err := json.Unmarshal([]byte(v), &a); err == nil {
			return &a, nil
		}
	}
	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		a, err := r.apps.GetApp(ctx, appID)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(a); err == nil {
			r.set(ctx, key, string(b))
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	a := *v.(*repository.App)
	return &a, nil
}

// InvalidateAccount descarta el owner cacheado (account.updated, deauthorized).
func (r *Resolver) InvalidateAccount(ctx context.Context, accountID string) {
	r.del(ctx, accountKey(accountID))
}

func (r *Resolver) get(ctx context.Context, key string) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	v, err := r.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsNotFound(err) {
			logger.From(ctx).Warn("tenant cache get failed", logger.Component("tenantcache"), logger.String("key", key), logger.Err(err))
		}
		return "", false
	}
	return v, true
}

func (r *Resolver) set(ctx context.Context, key, value string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil {
		logger.From(ctx).Warn("tenant cache set failed", logger.Component("tenantcache"), logger.String("key", key), logger.Err(err))
	}
}

func (r *Resolver) del(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrNotFound) {
		logger.From(ctx).Warn("tenant cache delete failed", logger.Component("tenantcache"), logger.String("key", key), logger.Err(err))
	}
}
