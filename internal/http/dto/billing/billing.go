// Package billing define los DTOs de webhook y entitlement.
package billing

import "time"

type WebhookAck struct {
	Received bool `json:"received"`
}

type EntitlementResponse struct {
	Status      string    `json:"status"`
	AccessUntil time.Time `json:"access_until"`
	Source      string    `json:"source,omitempty"`
	ComputedAt  time.Time `json:"computed_at"`
}

type Recurring struct {
	Interval      string `json:"interval"`
	IntervalCount int64  `json:"interval_count"`
}

type PriceResponse struct {
	ID                 string     `json:"id"`
	ProductID          string     `json:"product_id,omitempty"`
	ProductName        string     `json:"product_name,omitempty"`
	ProductDescription string     `json:"product_description,omitempty"`
	Currency           string     `json:"currency"`
	UnitAmount         int64      `json:"unit_amount"`
	Recurring          *Recurring `json:"recurring,omitempty"`
}

type PriceListResponse struct {
	Data  []PriceResponse `json:"data"`
	Count int             `json:"count"`
}

// RedirectResponse se devuelve en lugar del 303 cuando el cliente pide JSON.
type RedirectResponse struct {
	URL string `json:"url"`
}
