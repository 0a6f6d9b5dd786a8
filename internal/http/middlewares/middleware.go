// Package middlewares contiene los decoradores HTTP comunes: request id,
// logging, recover, headers, CORS, rate limit, métricas y sesión.
package middlewares

import "net/http"

// Middleware es un decorador de http.Handler; compatible con chi.Router.Use.
type Middleware func(http.Handler) http.Handler

// Chain aplica mws de izquierda a derecha: el primero es el más externo.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
