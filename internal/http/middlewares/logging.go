package middlewares

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

// statusRecorder captura status y bytes escritos.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// WithLogging inyecta en el contexto un logger con request_id, method y path,
// y registra el fin del request con un nivel según el status.
//
//	{"level":"info","msg":"request completed","request_id":"...","method":"POST","path":"/auth/app_1/password/login","status":200,"tenant_id":"app_1","duration_ms":12}
func WithLogging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLog := logger.L().With(
				logger.RequestID(GetRequestID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(logger.ToContext(r.Context(), reqLog)))

			// chi completa el RouteContext durante el ruteo
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if t := rctx.URLParam(TenantParam); t != "" {
					reqLog = reqLog.With(logger.TenantID(t))
				}
			}
			fields := []zap.Field{
				logger.Status(rec.status),
				logger.Bytes(rec.bytes),
				logger.DurationMs(time.Since(start).Milliseconds()),
			}
			switch {
			case rec.status >= 500:
				reqLog.Error("request failed", fields...)
			case rec.status >= 400:
				reqLog.Warn("request completed with client error", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}

// WithTenant fija el tenant del parámetro de ruta en el contexto y agrega
// tenant_id al logger del request. Se usa dentro de los grupos /{appID}.
func WithTenant() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := TenantFromRequest(r)
			ctx := r.Context()
			if tenant != "" {
				ctx = context.WithValue(ctx, ctxTenantKey, tenant)
				ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.TenantID(tenant)))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
