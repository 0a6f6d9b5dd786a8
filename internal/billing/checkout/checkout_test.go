package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/appbase/internal/billing/webhook"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/store/memory"
)

const (
	appA  = "app_a"
	userA = "6f1c1a52-8a0e-4d53-9a51-2f3c55b0e0a1"
)

type fakeProvider struct {
	prices   map[string]Price
	sessions []SessionRequest
	accounts []string
	portal   []string
	fail     error
}

func (f *fakeProvider) GetPrice(ctx context.Context, accountID, priceID string) (*Price, error) {
	p, ok := f.prices[priceID]
	if !ok {
		return nil, ErrPriceNotFound
	}
	return &p, nil
}

func (f *fakeProvider) ListPrices(ctx context.Context, accountID string) ([]Price, error) {
	var out []Price
	for _, p := range f.prices {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, accountID string, req SessionRequest) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.accounts = append(f.accounts, accountID)
	f.sessions = append(f.sessions, req)
	return "https://checkout.example/cs_1", nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, accountID, customerID, returnURL string) (string, error) {
	f.portal = append(f.portal, accountID, customerID, returnURL)
	return "https://portal.example/bps_1", nil
}

func newService(t *testing.T, urls URLs) (*Service, *fakeProvider, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.PutApp(repository.App{ID: appA, MonetizationType: repository.MonetizationPaymentRequired})
	st.PutApp(repository.App{ID: "app_b", MonetizationType: repository.MonetizationPaymentRequired})
	st.PutConnectedAccount(repository.ConnectedAccount{AccountID: "acct_a", AppID: appA})
	require.NoError(t, st.CreateSubject(context.Background(), repository.Subject{TenantID: appA, ID: userA, Email: "ana@example.com"}))

	fp := &fakeProvider{prices: map[string]Price{
		"price_month": {ID: "price_month", AppID: appA, Active: true, Recurring: true, Interval: "month", Currency: "usd", UnitAmount: 900},
		"price_once":  {ID: "price_once", AppID: appA, Active: true, Currency: "usd", UnitAmount: 2500},
		"price_old":   {ID: "price_old", AppID: appA, Active: false},
		"price_other": {ID: "price_other", AppID: "app_b", Active: true},
	}}
	return NewService(st.Apps(), st.Subjects(), st.Ledger(), fp, urls), fp, st
}

func TestStartCheckoutStampsOwner(t *testing.T) {
	s, fp, _ := newService(t, URLs{})
	ctx := context.Background()

	u, err := s.StartCheckout(ctx, appA, userA, "price_month", "https://api.example")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", u)

	require.Len(t, fp.sessions, 1)
	req := fp.sessions[0]
	assert.Equal(t, []string{"acct_a"}, fp.accounts)
	assert.Equal(t, ModeSubscription, req.Mode)
	assert.Equal(t, map[string]string{webhook.MetaAppID: appA, webhook.MetaEndUserID: userA}, req.Metadata)
	assert.Equal(t, userA, req.ClientReferenceID)
	assert.Equal(t, "ana@example.com", req.Email)
	assert.Empty(t, req.CustomerID)
	assert.Equal(t, "https://api.example/stripe/success?session_id={CHECKOUT_SESSION_ID}&app_id=app_a", req.SuccessURL)
	assert.Equal(t, "https://api.example/stripe/cancel?app_id=app_a", req.CancelURL)
}

func TestStartCheckoutReusesCustomer(t *testing.T) {
	s, fp, st := newService(t, URLs{Success: "https://app.example/ok", Cancel: "https://app.example/no"})
	ctx := context.Background()
	require.NoError(t, st.UpsertCustomer(ctx, repository.Customer{TenantID: appA, SubjectID: userA, CustomerID: "cus_1", AccountID: "acct_a"}))

	_, err := s.StartCheckout(ctx, appA, userA, "price_once", "https://api.example")
	require.NoError(t, err)

	req := fp.sessions[0]
	assert.Equal(t, ModePayment, req.Mode)
	assert.Equal(t, "cus_1", req.CustomerID)
	assert.Empty(t, req.Email)
	assert.Equal(t, "https://app.example/ok", req.SuccessURL)
	assert.Equal(t, "https://app.example/no", req.CancelURL)
}

func TestStartCheckoutRejects(t *testing.T) {
	s, fp, _ := newService(t, URLs{})
	ctx := context.Background()

	cases := []struct {
		tenant, price string
		want          error
	}{
		{appA, "price_missing", ErrPriceNotFound},
		{appA, "", ErrPriceNotFound},
		{appA, "price_old", ErrPriceInactive},
		{appA, "price_other", ErrPriceForbidden},
		{"app_b", "price_other", ErrNoAccount},
	}
	for _, c := range cases {
		_, err := s.StartCheckout(ctx, c.tenant, userA, c.price, "https://api.example")
		assert.ErrorIs(t, err, c.want, "%s/%s", c.tenant, c.price)
	}
	assert.Empty(t, fp.sessions)
}

func TestStartCheckoutProviderFailure(t *testing.T) {
	s, fp, _ := newService(t, URLs{})
	fp.fail = errors.New("provider down")
	_, err := s.StartCheckout(context.Background(), appA, userA, "price_month", "https://api.example")
	assert.EqualError(t, err, "provider down")
}

func TestPricesFiltersByApp(t *testing.T) {
	s, _, _ := newService(t, URLs{})
	prices, err := s.Prices(context.Background(), appA)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, p := range prices {
		ids[p.ID] = true
	}
	assert.Equal(t, map[string]bool{"price_month": true, "price_once": true}, ids)
}

func TestPortal(t *testing.T) {
	s, fp, st := newService(t, URLs{})
	ctx := context.Background()

	_, err := s.Portal(ctx, appA, userA, "https://api.example")
	assert.ErrorIs(t, err, ErrNoCustomer)

	require.NoError(t, st.UpsertCustomer(ctx, repository.Customer{TenantID: appA, SubjectID: userA, CustomerID: "cus_1", AccountID: "acct_a"}))
	u, err := s.Portal(ctx, appA, userA, "https://api.example/")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example/bps_1", u)
	assert.Equal(t, []string{"acct_a", "cus_1", "https://api.example/dashboard"}, fp.portal)
}

func TestDisabledWithoutProvider(t *testing.T) {
	st := memory.New()
	s := NewService(st.Apps(), st.Subjects(), st.Ledger(), nil, URLs{})
	_, err := s.StartCheckout(context.Background(), appA, userA, "price_month", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.Prices(context.Background(), appA)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
