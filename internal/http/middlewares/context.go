package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// TenantParam es el nombre del parámetro de ruta que identifica al tenant.
const TenantParam = "appID"

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxTenantKey    ctxKey = "tenant_id"
)

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID devuelve el request id o "".
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return s
	}
	return ""
}

// GetTenantID devuelve el tenant fijado por WithTenant o "".
func GetTenantID(ctx context.Context) string {
	if s, ok := ctx.Value(ctxTenantKey).(string); ok {
		return s
	}
	return ""
}

// TenantFromRequest lee el tenant del contexto o, si todavía no se fijó, del
// parámetro de ruta.
func TenantFromRequest(r *http.Request) string {
	if t := GetTenantID(r.Context()); t != "" {
		return t
	}
	return strings.TrimSpace(chi.URLParam(r, TenantParam))
}

// ClientIP extrae la IP del cliente (primer X-Forwarded-For o RemoteAddr).
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
