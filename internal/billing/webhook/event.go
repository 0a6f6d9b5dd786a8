package webhook

import (
	"encoding/json"
	"errors"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

// Tipos de evento que entiende el dispatcher.
const (
	TypeSubscriptionCreated      = "customer.subscription.created"
	TypeSubscriptionUpdated      = "customer.subscription.updated"
	TypeSubscriptionDeleted      = "customer.subscription.deleted"
	TypeSubscriptionTrialWillEnd = "customer.subscription.trial_will_end"
	TypePaymentIntentCreated     = "payment_intent.created"
	TypePaymentIntentSucceeded   = "payment_intent.succeeded"
	TypePaymentIntentFailed      = "payment_intent.payment_failed"
	TypeChargeSucceeded          = "charge.succeeded"
	TypeChargeRefunded           = "charge.refunded"
	TypeChargeDisputeCreated     = "charge.dispute.created"
	TypeInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	TypeInvoicePaymentFailed     = "invoice.payment_failed"
	TypeCheckoutCompleted        = "checkout.session.completed"
	TypeAccountUpdated           = "account.updated"
	TypeAccountDeauthorized      = "account.application.deauthorized"
)

// Event es el envelope ya verificado. Object es data.object crudo.
type Event struct {
	ID      string
	Type    string
	Account string // cuenta conectada; vacío en eventos de la plataforma
	Created time.Time
	Object  json.RawMessage
}

func decodeEvent(payload []byte) (*Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, err
	}
	if se.ID == "" || se.Type == "" {
		return nil, errors.New("missing id or type")
	}
	ev := &Event{
		ID:      se.ID,
		Type:    string(se.Type),
		Account: se.Account,
		Created: time.Unix(se.Created, 0).UTC(),
	}
	if se.Data != nil {
		ev.Object = se.Data.Raw
	}
	return ev, nil
}
