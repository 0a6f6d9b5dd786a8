package session

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

const (
	cookiePrefix = "sid_"
	// hashedCookiePrefix no empieza con cookiePrefix: ningún tenant seguro
	// puede producir el mismo nombre.
	hashedCookiePrefix = "sidh_"
)

// HostEnvironment describe dónde corre el servicio.
type HostEnvironment struct {
	Env    string // local | dev | test | staging | prod
	Domain string // vacío = cookie host-only
}

// IsLocal: entornos de desarrollo sin HTTPS garantizado.
func (h HostEnvironment) IsLocal() bool {
	switch strings.ToLower(h.Env) {
	case "local", "dev", "development", "test":
		return true
	}
	return false
}

// CookiePolicy arma las cookies de sesión. Es función pura de
// (HostEnvironment, tenant): mismo input, mismos atributos.
type CookiePolicy struct {
	Host HostEnvironment
	// LegacyName es la cookie compartida que todavía se acepta en lectura
	// ("sid"). Vacío la desactiva.
	LegacyName string
}

// CookieName deriva el nombre de cookie del tenant. Si el id trae caracteres
// fuera del alfabeto de token RFC 6265 se usa un hash estable.
func CookieName(tenantID string) string {
	if isCookieSafe(tenantID) {
		return cookiePrefix + tenantID
	}
	sum := sha256.Sum256([]byte(tenantID))
	return hashedCookiePrefix + hex.EncodeToString(sum[:8])
}

func isCookieSafe(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// attrs aplica Path/Domain/SameSite/Secure/HttpOnly según el entorno.
func (p CookiePolicy) attrs(c *http.Cookie) *http.Cookie {
	c.Path = "/"
	c.Domain = p.Host.Domain
	c.HttpOnly = true
	if p.Host.IsLocal() {
		c.SameSite = http.SameSiteLaxMode
		c.Secure = false
	} else {
		// las apps embeben el backend cross-site
		c.SameSite = http.SameSiteNoneMode
		c.Secure = true
	}
	return c
}

// Cookie devuelve la cookie que transporta el token crudo.
func (p CookiePolicy) Cookie(tenantID, rawToken string, expiresAt, now time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	return p.attrs(&http.Cookie{
		Name:    CookieName(tenantID),
		Value:   rawToken,
		Expires: expiresAt.UTC(),
		MaxAge:  maxAge,
	})
}

// Clear devuelve una cookie ya vencida con mismo nombre y atributos.
func (p CookiePolicy) Clear(tenantID string) *http.Cookie {
	return p.clear(CookieName(tenantID))
}

// ClearLegacy borra la cookie compartida; nil si no hay legacy configurada.
func (p CookiePolicy) ClearLegacy() *http.Cookie {
	if p.LegacyName == "" {
		return nil
	}
	return p.clear(p.LegacyName)
}

func (p CookiePolicy) clear(name string) *http.Cookie {
	return p.attrs(&http.Cookie{
		Name:    name,
		Value:   "",
		Expires: time.Unix(0, 0).UTC(),
		MaxAge:  -1,
	})
}
