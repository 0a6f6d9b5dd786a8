package middlewares

import (
	"math"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/rate"
)

// RateKeyFunc genera la clave de rate limiting de un request.
type RateKeyFunc func(r *http.Request) string

// TenantIPRateKey: ip|tenant|path. Un tenant ruidoso no consume el cupo de otro.
func TenantIPRateKey(r *http.Request) string {
	return ClientIP(r) + "|" + TenantFromRequest(r) + "|" + r.URL.Path
}

// WithRateLimit corta con 429 cuando el limiter lo indica. Si el limiter
// falla el request pasa (fail-open) y se loguea.
func WithRateLimit(l rate.Limiter, keyFn RateKeyFunc) Middleware {
	if keyFn == nil {
		keyFn = TenantIPRateKey
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable",
					logger.Component("rate"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					secs := int(math.Ceil(res.RetryAfter.Seconds()))
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				errors.WriteError(w, r, errors.ErrRateLimitExceeded)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
