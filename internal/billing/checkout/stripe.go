package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider usa la secret key de la plataforma y actúa sobre cada
// cuenta conectada con el header Stripe-Account.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

func (p *StripeProvider) GetPrice(ctx context.Context, accountID, priceID string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	params.AddExpand("product")

	pr, err := p.api.Prices.Get(priceID, params)
	if err != nil {
		if isMissing(err) {
			return nil, ErrPriceNotFound
		}
		return nil, fmt.Errorf("checkout: get price: %w", err)
	}
	out := fromStripePrice(pr)
	return &out, nil
}

func (p *StripeProvider) ListPrices(ctx context.Context, accountID string) ([]Price, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	params.AddExpand("data.product")

	var out []Price
	it := p.api.Prices.List(params)
	for it.Next() {
		out = append(out, fromStripePrice(it.Price()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("checkout: list prices: %w", err)
	}
	return out, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, accountID string, req SessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(req.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		Metadata:          req.Metadata,
	}
	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}
	// la metadata tiene que llegar a los objetos que generan los eventos
	switch req.Mode {
	case ModeSubscription:
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: req.Metadata}
	case ModePayment:
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: req.Metadata}
		if req.CustomerID == "" {
			params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
		}
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("checkout: create session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, accountID, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("checkout: create portal session: %w", err)
	}
	return s.URL, nil
}

func fromStripePrice(pr *stripe.Price) Price {
	out := Price{
		ID:         pr.ID,
		Active:     pr.Active,
		Currency:   string(pr.Currency),
		UnitAmount: pr.UnitAmount,
	}
	if pr.Recurring != nil {
		out.Recurring = true
		out.Interval = string(pr.Recurring.Interval)
		out.IntervalCount = pr.Recurring.IntervalCount
	}
	if pr.Product != nil {
		out.ProductID = pr.Product.ID
		out.ProductName = pr.Product.Name
		out.ProductDescription = pr.Product.Description
		out.AppID = pr.Product.Metadata[ProductAppKey]
	}
	return out
}

func isMissing(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing
}
