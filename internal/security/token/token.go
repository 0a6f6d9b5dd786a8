// Package token acuña tokens opacos de sesión y calcula su digest con pepper.
//
// El token crudo solo existe en la cookie del cliente; en storage se guarda
// únicamente Digest(raw, pepper).
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DefaultBytes es la entropía por defecto de un token (256 bits).
const DefaultBytes = 32

// Mint genera n bytes aleatorios y los devuelve en base64url sin padding.
func Mint(n int) (string, error) {
	if n <= 0 {
		n = DefaultBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest = hex(HMAC-SHA256(pepper, raw)). Determinista para el mismo pepper.
func Digest(raw string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Codec fija pepper y longitud para el resto del proceso.
type Codec struct {
	pepper []byte
	nBytes int
}

func NewCodec(pepper string, nBytes int) *Codec {
	if nBytes <= 0 {
		nBytes = DefaultBytes
	}
	return &Codec{pepper: []byte(pepper), nBytes: nBytes}
}

// Mint devuelve un token crudo nuevo y su digest.
func (c *Codec) Mint() (raw, digest string, err error) {
	raw, err = Mint(c.nBytes)
	if err != nil {
		return "", "", err
	}
	return raw, c.Digest(raw), nil
}

func (c *Codec) Digest(raw string) string { return Digest(raw, c.pepper) }
