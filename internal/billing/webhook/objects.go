package webhook

import (
	"bytes"
	"encoding/json"
	"time"
)

// Vistas mínimas de data.object. Se decodifican a mano porque las cuentas
// conectadas pueden estar fijadas a versiones de API distintas (ej: el
// period end de la suscripción vive arriba o en items según la versión).

// expandable acepta un id ("cus_123") o un objeto expandido ({"id": ...}).
type expandable struct{ ID string }

func (e *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           expandable        `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAt           int64             `json:"cancel_at"`
	CanceledAt         int64             `json:"canceled_at"`
	TrialEnd           int64             `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// period devuelve el período actual; si no viene arriba se toma el rango
// que cubre todos los items.
func (s *subscriptionObject) period() (start, end *time.Time) {
	st, en := s.CurrentPeriodStart, s.CurrentPeriodEnd
	for _, it := range s.Items.Data {
		if s.CurrentPeriodStart == 0 && it.CurrentPeriodStart > 0 && (st == 0 || it.CurrentPeriodStart < st) {
			st = it.CurrentPeriodStart
		}
		if s.CurrentPeriodEnd == 0 && it.CurrentPeriodEnd > en {
			en = it.CurrentPeriodEnd
		}
	}
	return unixPtr(st), unixPtr(en)
}

func (s *subscriptionObject) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

type paymentIntentObject struct {
	ID             string            `json:"id"`
	Customer       expandable        `json:"customer"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

type chargeObject struct {
	ID             string            `json:"id"`
	PaymentIntent  expandable        `json:"payment_intent"`
	Customer       expandable        `json:"customer"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Refunded       bool              `json:"refunded"`
	Created        int64             `json:"created"`
	Metadata       map[string]string `json:"metadata"`
}

// paymentID: el ledger se indexa por payment intent; cargos sueltos usan su id.
func (c *chargeObject) paymentID() string {
	if c.PaymentIntent.ID != "" {
		return c.PaymentIntent.ID
	}
	return c.ID
}

type checkoutSessionObject struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Customer      expandable        `json:"customer"`
	PaymentIntent expandable        `json:"payment_intent"`
	Subscription  expandable        `json:"subscription"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type accountObject struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
