// Package webhook recibe eventos del proveedor de pagos: verifica la firma
// sobre el body crudo y los despacha al ledger de billing.
package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	// SignatureHeader es el header que firma el proveedor.
	SignatureHeader = "Stripe-Signature"

	DefaultTolerance = webhook.DefaultTolerance
)

var (
	// ErrSignature: firma ausente, inválida o vencida. Terminal (400).
	ErrSignature = errors.New("webhook: invalid signature")
	// ErrMalformed: firma válida pero el envelope no se puede decodificar.
	ErrMalformed = errors.New("webhook: malformed event")
	// ErrNotConfigured: no hay secret configurado.
	ErrNotConfigured = errors.New("webhook: signing secret not configured")
)

// Verifier valida el header del proveedor con su propia librería y recién
// después decodifica el envelope. Acepta varios v1 (rotación de secret).
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify chequea la firma y decodifica el evento. payload debe ser el body
// exacto recibido, sin re-serializar.
func (v *Verifier) Verify(payload []byte, header string) (*Event, error) {
	if v.secret == "" {
		return nil, ErrNotConfigured
	}
	// Solo la firma: la versión de API del envelope no se valida acá.
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	ev, err := decodeEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ev, nil
}
