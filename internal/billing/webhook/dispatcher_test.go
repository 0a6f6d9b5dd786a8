package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/appbase/internal/billing/reconcile"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/infra/tenantcache"
	"github.com/dropDatabas3/appbase/internal/store/memory"
)

const (
	appA  = "app_a"
	appB  = "app_b"
	userA = "6f1c1a52-8a0e-4d53-9a51-2f3c55b0e0a1"
)

type fixture struct {
	st *memory.Store
	d  *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	st.PutApp(repository.App{ID: appA, MonetizationType: repository.MonetizationPaymentRequired})
	st.PutApp(repository.App{ID: appB, MonetizationType: repository.MonetizationPaymentRequired})
	st.PutConnectedAccount(repository.ConnectedAccount{AccountID: "acct_a", AppID: appA})
	st.PutConnectedAccount(repository.ConnectedAccount{AccountID: "acct_b", AppID: appB})

	tenants := tenantcache.New(st.Apps(), nil, 0)
	rec := reconcile.NewReconciler(st.Ledger(), st.Entitlements(), reconcile.Config{})
	return &fixture{st: st, d: NewDispatcher(tenants, st.Apps(), st.Ledger(), rec)}
}

func event(t *testing.T, id, typ, account string, created time.Time, obj any) *Event {
	t.Helper()
	b, err := json.Marshal(obj)
	require.NoError(t, err)
	return &Event{ID: id, Type: typ, Account: account, Created: created.UTC(), Object: b}
}

func meta(app, user string) map[string]string {
	return map[string]string{MetaAppID: app, MetaEndUserID: user}
}

func subObj(status string, periodEnd time.Time, m map[string]string) map[string]any {
	return map[string]any{
		"id":                 "sub_1",
		"customer":           "cus_1",
		"status":             status,
		"current_period_end": periodEnd.Unix(),
		"metadata":           m,
	}
}

func (f *fixture) subscription(t *testing.T) repository.Subscription {
	t.Helper()
	subs, err := f.st.ListSubscriptions(context.Background(), appA, userA)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	return subs[0]
}

func TestSubscriptionReplayIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)
	end := base.Add(30 * 24 * time.Hour)

	created := func(t *testing.T) *Event {
		return event(t, "evt_c", TypeSubscriptionCreated, "acct_a", base, subObj("incomplete", end, meta(appA, userA)))
	}
	updated := func(t *testing.T) *Event {
		// mismo segundo que created: decide el rank
		return event(t, "evt_u", TypeSubscriptionUpdated, "acct_a", base, subObj("active", end, meta(appA, userA)))
	}

	inOrder := newFixture(t)
	for _, ev := range []*Event{created(t), updated(t), updated(t), created(t)} {
		_, err := inOrder.d.Dispatch(ctx, ev)
		require.NoError(t, err)
	}
	reversed := newFixture(t)
	for _, ev := range []*Event{updated(t), created(t)} {
		_, err := reversed.d.Dispatch(ctx, ev)
		require.NoError(t, err)
	}

	a, b := inOrder.subscription(t), reversed.subscription(t)
	assert.Equal(t, repository.SubActive, a.Status)
	assert.Equal(t, a, b)

	entA, err := inOrder.st.GetEntitlement(ctx, appA, userA)
	require.NoError(t, err)
	entB, err := reversed.st.GetEntitlement(ctx, appA, userA)
	require.NoError(t, err)
	assert.Equal(t, repository.BillingCurrent, entA.Status)
	assert.Equal(t, entA.Status, entB.Status)
	assert.Equal(t, entA.AccessUntil, entB.AccessUntil)
	assert.Equal(t, end.UTC(), entA.AccessUntil)
}

func TestStaleEventReportsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	out, err := f.d.Dispatch(ctx, event(t, "evt_2", TypeSubscriptionUpdated, "", base.Add(time.Minute), subObj("canceled", base, meta(appA, userA))))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	out, err = f.d.Dispatch(ctx, event(t, "evt_1", TypeSubscriptionUpdated, "", base, subObj("active", base, meta(appA, userA))))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out)
	assert.Equal(t, repository.SubCanceled, f.subscription(t).Status)
}

func TestMissingMetadataIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for name, m := range map[string]map[string]string{
		"none":         nil,
		"no user":      {MetaAppID: appA},
		"bad uuid":     meta(appA, "user-1"),
		"unknown app":  meta("app_x", userA),
		"foreign acct": meta(appB, userA),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := f.d.Dispatch(ctx, event(t, "evt_m", TypeSubscriptionCreated, "acct_a", time.Now(), subObj("active", time.Now(), m)))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDropped, out)
		})
	}
	subs, err := f.st.ListSubscriptions(ctx, appB, userA)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestCrossTenantSubscriptionIdIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	_, err := f.d.Dispatch(ctx, event(t, "evt_1", TypeSubscriptionCreated, "", now, subObj("active", now, meta(appA, userA))))
	require.NoError(t, err)
	out, err := f.d.Dispatch(ctx, event(t, "evt_2", TypeSubscriptionUpdated, "", now.Add(time.Second), subObj("canceled", now, meta(appB, userA))))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDropped, out)
	assert.Equal(t, repository.SubActive, f.subscription(t).Status)
}

func TestUnknownAndInformationalTypesAreIgnored(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []string{"product.created", TypeInvoicePaymentFailed, TypeChargeDisputeCreated, TypeSubscriptionTrialWillEnd} {
		out, err := f.d.Dispatch(context.Background(), &Event{ID: "evt_x", Type: typ, Created: time.Now(), Object: json.RawMessage(`{}`)})
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, out, typ)
	}
}

func TestOneTimePaymentAndRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := time.Now().Add(-time.Hour).Truncate(time.Second)

	pi := map[string]any{"id": "pi_1", "amount": 1500, "amount_received": 1500, "currency": "usd",
		"status": "succeeded", "metadata": meta(appA, userA)}
	_, err := f.d.Dispatch(ctx, event(t, "evt_pi", TypePaymentIntentSucceeded, "acct_a", paid, pi))
	require.NoError(t, err)

	ent, err := f.st.GetEntitlement(ctx, appA, userA)
	require.NoError(t, err)
	assert.Equal(t, repository.BillingCurrent, ent.Status)
	assert.Equal(t, paid.Add(reconcile.DefaultOneTimeAccess).UTC(), ent.AccessUntil)

	// el cargo reembolsado no trae metadata: se resuelve por cuenta + pago registrado
	charge := map[string]any{"id": "ch_1", "payment_intent": "pi_1", "amount": 1500, "amount_refunded": 1500,
		"currency": "usd", "status": "succeeded", "refunded": true, "created": paid.Unix()}
	out, err := f.d.Dispatch(ctx, event(t, "evt_ref", TypeChargeRefunded, "acct_a", paid.Add(time.Minute), charge))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	p, err := f.st.GetPayment(ctx, appA, "pi_1")
	require.NoError(t, err)
	assert.True(t, p.Refunded)
	assert.EqualValues(t, 1500, p.RefundedAmount)

	ent, err = f.st.GetEntitlement(ctx, appA, userA)
	require.NoError(t, err)
	assert.Equal(t, repository.BillingCancelled, ent.Status)
}

func TestPaymentAndChargeAreOrderIndependent(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().Add(-time.Hour).Truncate(time.Second)

	pi := func(t *testing.T) *Event {
		obj := map[string]any{"id": "pi_1", "amount": 1500, "amount_received": 1500, "currency": "usd",
			"status": "succeeded", "metadata": meta(appA, userA)}
		return event(t, "evt_pi", TypePaymentIntentSucceeded, "acct_a", t0.Add(3*time.Second), obj)
	}
	charge := func(t *testing.T) *Event {
		obj := map[string]any{"id": "ch_1", "payment_intent": "pi_1", "amount": 1500, "currency": "usd",
			"status": "succeeded", "created": t0.Unix(), "metadata": meta(appA, userA)}
		return event(t, "evt_ch", TypeChargeSucceeded, "acct_a", t0.Add(4*time.Second), obj)
	}

	replay := func(t *testing.T, evs ...*Event) (*repository.Payment, *repository.Entitlement) {
		f := newFixture(t)
		for _, ev := range evs {
			_, err := f.d.Dispatch(ctx, ev)
			require.NoError(t, err)
		}
		p, err := f.st.GetPayment(ctx, appA, "pi_1")
		require.NoError(t, err)
		ent, err := f.st.GetEntitlement(ctx, appA, userA)
		require.NoError(t, err)
		return p, ent
	}

	p1, ent1 := replay(t, pi(t), charge(t))
	p2, ent2 := replay(t, charge(t), pi(t))

	assert.Equal(t, p1, p2)
	require.NotNil(t, p1.PaidAt)
	assert.Equal(t, t0.UTC(), *p1.PaidAt)
	assert.Equal(t, ent1.Status, ent2.Status)
	assert.Equal(t, ent1.AccessUntil, ent2.AccessUntil)
	assert.Equal(t, t0.Add(reconcile.DefaultOneTimeAccess).UTC(), ent1.AccessUntil)
}

func TestChargeBeforePaymentIsRetryable(t *testing.T) {
	f := newFixture(t)
	charge := map[string]any{"id": "ch_1", "payment_intent": "pi_9", "amount": 100, "status": "succeeded", "created": time.Now().Unix()}
	_, err := f.d.Dispatch(context.Background(), event(t, "evt_ch", TypeChargeSucceeded, "acct_a", time.Now(), charge))
	assert.ErrorIs(t, err, ErrPaymentNotRecorded)

	// sin cuenta ni metadata no hay forma de atribuirlo
	out, err := f.d.Dispatch(context.Background(), event(t, "evt_ch2", TypeChargeSucceeded, "", time.Now(), charge))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDropped, out)
}

func TestCheckoutCompletedPaymentMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	obj := map[string]any{"id": "cs_1", "mode": "payment", "customer": "cus_9", "payment_intent": "pi_7",
		"payment_status": "paid", "amount_total": 900, "currency": "eur", "metadata": meta(appA, userA)}
	out, err := f.d.Dispatch(ctx, event(t, "evt_cs", TypeCheckoutCompleted, "acct_a", time.Now(), obj))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	p, err := f.st.GetPayment(ctx, appA, "pi_7")
	require.NoError(t, err)
	assert.Equal(t, repository.PaySucceeded, p.Status)
	assert.Equal(t, "cus_9", p.CustomerID)
	assert.EqualValues(t, 900, p.Amount)
}

func TestAccountDeauthorizedStopsResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.d.Dispatch(ctx, &Event{ID: "evt_d", Type: TypeAccountDeauthorized, Account: "acct_a", Created: time.Now(), Object: json.RawMessage(`{"id":"ca_1"}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	out, err = f.d.Dispatch(ctx, event(t, "evt_s", TypeSubscriptionCreated, "acct_a", time.Now(), subObj("active", time.Now(), meta(appA, userA))))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDropped, out)

	out, err = f.d.Dispatch(ctx, &Event{ID: "evt_u", Type: TypeAccountUpdated, Account: "acct_zz", Created: time.Now(), Object: json.RawMessage(`{"id":"acct_zz","charges_enabled":true}`)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
}

func TestSubscriptionPeriodFromItems(t *testing.T) {
	f := newFixture(t)
	end := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	obj := map[string]any{
		"id": "sub_1", "status": "trialing", "trial_end": end.Add(-24 * time.Hour).Unix(), "metadata": meta(appA, userA),
		"items": map[string]any{"data": []map[string]any{{"current_period_end": end.Unix(), "price": map[string]any{"id": "price_1"}}}},
	}
	_, err := f.d.Dispatch(context.Background(), event(t, "evt_i", TypeSubscriptionCreated, "", time.Now(), obj))
	require.NoError(t, err)

	sub := f.subscription(t)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, end.Unix(), sub.CurrentPeriodEnd.Unix())
	assert.Equal(t, "price_1", sub.PriceID)
}
