// Package app arma el contenedor de dependencias a partir de la config:
// store, cache, sesiones, identidad y billing. cmd/service y cmd/appbasectl
// comparten este wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/appbase/internal/billing/checkout"
	"github.com/dropDatabas3/appbase/internal/billing/reconcile"
	"github.com/dropDatabas3/appbase/internal/billing/webhook"
	"github.com/dropDatabas3/appbase/internal/cache"
	memcache "github.com/dropDatabas3/appbase/internal/cache/memory"
	rediscache "github.com/dropDatabas3/appbase/internal/cache/redis"
	"github.com/dropDatabas3/appbase/internal/config"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/http/controllers/apps"
	"github.com/dropDatabas3/appbase/internal/http/controllers/auth"
	"github.com/dropDatabas3/appbase/internal/http/controllers/billing"
	"github.com/dropDatabas3/appbase/internal/http/controllers/health"
	mw "github.com/dropDatabas3/appbase/internal/http/middlewares"
	"github.com/dropDatabas3/appbase/internal/http/router"
	"github.com/dropDatabas3/appbase/internal/identity"
	"github.com/dropDatabas3/appbase/internal/infra/tenantcache"
	"github.com/dropDatabas3/appbase/internal/metrics"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/rate"
	"github.com/dropDatabas3/appbase/internal/security/password"
	"github.com/dropDatabas3/appbase/internal/security/token"
	"github.com/dropDatabas3/appbase/internal/session"
	"github.com/dropDatabas3/appbase/internal/store/memory"
	"github.com/dropDatabas3/appbase/internal/store/pg"
	migrations "github.com/dropDatabas3/appbase/migrations/postgres"
)

// Container guarda las dependencias vivas del proceso.
type Container struct {
	Config *config.Config

	Store repository.Store
	Cache cache.Client
	redis *rdb.Client

	Tenants    *tenantcache.Resolver
	Sessions   *session.Manager
	Linker     *identity.Linker
	Passwords  *identity.Passwords
	Reconciler *reconcile.Reconciler
	Verifier   *webhook.Verifier
	Dispatcher *webhook.Dispatcher
	Checkout   *checkout.Service
	Limiter    rate.Limiter
}

// OpenStore abre el store configurado. Con migrate=true corre las
// migraciones embebidas (solo postgres).
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		st, err := pg.Open(ctx, pg.Config{
			DSN:          cfg.Storage.DSN,
			MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			n, err := st.RunMigrations(ctx, migrations.FS)
			if err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
			logger.From(ctx).Info("migrations applied", logger.Count(n))
		}
		return st, nil
	}
	return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
}

// New construye el contenedor completo.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	st, err := OpenStore(ctx, cfg, cfg.Flags.Migrate)
	if err != nil {
		return nil, err
	}
	c := &Container{Config: cfg, Store: st}

	switch cfg.Cache.Kind {
	case "redis":
		client, err := rediscache.Dial(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		c.redis = client
		c.Cache = rediscache.New(client, cfg.Cache.Redis.Prefix, cfg.CacheDefaultTTL())
	default:
		c.Cache = memcache.New(cfg.CacheDefaultTTL())
	}

	if cfg.Rate.Enabled {
		if c.redis != nil {
			c.Limiter = rate.NewRedisLimiter(c.redis, cfg.Cache.Redis.Prefix+":rl:", cfg.Rate.Login.Limit, cfg.RateLoginWindow())
		} else {
			c.Limiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.RateLoginWindow())
		}
	}

	c.Tenants = tenantcache.New(st.Apps(), c.Cache, tenantcache.DefaultTTL)
	c.Sessions = session.NewManager(st.Sessions(), token.NewCodec(cfg.Session.Pepper, cfg.Session.TokenBytes), session.Options{
		TTL: cfg.SessionTTL(),
		Cookies: session.CookiePolicy{
			Host:       session.HostEnvironment{Env: cfg.App.Env, Domain: cfg.Session.CookieDomain},
			LegacyName: cfg.Session.LegacyCookieName,
		},
	})
	c.Linker = identity.NewLinker(st.Subjects(), st.Identities())
	c.Passwords = identity.NewPasswords(c.Linker, st.Subjects(), st.Identities(), password.Default, password.DefaultPolicy)
	c.Reconciler = reconcile.NewReconciler(st.Ledger(), st.Entitlements(), reconcile.Config{
		PastDueGrace:  cfg.PastDueGrace(),
		OneTimeAccess: cfg.OneTimeAccess(),
	})
	c.Verifier = webhook.NewVerifier(cfg.Billing.WebhookSecret, cfg.WebhookTolerance())
	c.Dispatcher = webhook.NewDispatcher(c.Tenants, st.Apps(), st.Ledger(), c.Reconciler)

	var provider checkout.Provider
	if cfg.Billing.SecretKey != "" {
		provider = checkout.NewStripeProvider(cfg.Billing.SecretKey)
	}
	c.Checkout = checkout.NewService(st.Apps(), st.Subjects(), st.Ledger(), provider, checkout.URLs{
		Success:      cfg.Billing.CheckoutSuccessURL,
		Cancel:       cfg.Billing.CheckoutCancelURL,
		PortalReturn: cfg.Billing.PortalReturnURL,
	})
	return c, nil
}

// Handler registra métricas en reg (nil = default registry) y devuelve el
// router HTTP.
func (c *Container) Handler(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}
	if err := mw.RegisterHTTPMetrics(reg); err != nil {
		return nil, err
	}
	if pgStore, ok := c.Store.(*pg.Store); ok {
		if err := metrics.RegisterCollector(reg, pgStore.Collector()); err != nil {
			return nil, err
		}
	}

	metricsHandler := promhttp.Handler()
	if g, ok := reg.(prometheus.Gatherer); ok {
		metricsHandler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}

	return router.New(router.Deps{
		Auth: auth.NewControllers(auth.Deps{
			Apps:      c.Tenants,
			Passwords: c.Passwords,
			Sessions:  c.Sessions,
			Subjects:  c.Store.Subjects(),
		}),
		Webhook:     billing.NewWebhookController(c.Verifier, c.Dispatcher),
		Entitlement: billing.NewEntitlementController(c.Reconciler),
		Checkout:    billing.NewCheckoutController(c.Checkout),
		AppConfig:   apps.NewConfigController(c.Tenants),
		Health: health.NewHealthController(map[string]health.Pinger{
			"store": c.Store,
			"cache": c.Cache,
		}),
		Sessions:     c.Sessions,
		LoginLimiter: c.Limiter,
		CORSOrigins:  c.Config.Server.CORSAllowedOrigins,
		Metrics:      metricsHandler,
	}), nil
}

// Close libera store y cache.
func (c *Container) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
