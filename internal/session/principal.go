package session

import (
	"context"
	"time"
)

// Principal es la identidad autenticada de un request. Inmutable: solo se
// construye en Validate y se lee con getters.
type Principal struct {
	tenantID  string
	subjectID string
	digest    string
	expiresAt time.Time
}

func (p Principal) TenantID() string     { return p.tenantID }
func (p Principal) SubjectID() string    { return p.subjectID }
func (p Principal) Digest() string       { return p.digest }
func (p Principal) ExpiresAt() time.Time { return p.expiresAt }

type ctxKey struct{}

// WithPrincipal adjunta el principal al contexto del request.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext devuelve el principal y si había uno.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
