package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/store/memory"
)

func newTestReconciler(now time.Time) (*Reconciler, *memory.Store) {
	st := memory.New()
	r := NewReconciler(st.Ledger(), st.Entitlements(), Config{})
	r.now = func() time.Time { return now }
	return r, st
}

func TestReconcilePersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	r, st := newTestReconciler(t0)
	_, err := st.UpsertSubscription(ctx, repository.Subscription{ID: "sub_1", TenantID: "app_a", SubjectID: "u1",
		Status: repository.SubActive, CurrentPeriodEnd: at(30 * day), Version: repository.Version{At: t0}})
	require.NoError(t, err)

	ent, err := r.Reconcile(ctx, "app_a", "u1")
	require.NoError(t, err)
	assert.Equal(t, repository.BillingCurrent, ent.Status)

	got, err := st.GetEntitlement(ctx, "app_a", "u1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*day), got.AccessUntil)
	assert.Equal(t, "sub_1", got.Source)
	assert.Equal(t, t0, got.ComputedAt)

	// otro tenant no ve nada del ledger de app_a
	other, err := r.Reconcile(ctx, "app_b", "u1")
	require.NoError(t, err)
	assert.Equal(t, repository.BillingCancelled, other.Status)
}

func TestReconcileRequiresTenant(t *testing.T) {
	r, _ := newTestReconciler(t0)
	_, err := r.Reconcile(context.Background(), "", "u1")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestRebuildAllSubjects(t *testing.T) {
	ctx := context.Background()
	r, st := newTestReconciler(t0)
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := st.UpsertPayment(ctx, repository.Payment{ID: "pi_" + id, TenantID: "app_a", SubjectID: id,
			Status: repository.PaySucceeded, PaidAt: at(-day)})
		require.NoError(t, err)
	}

	n, err := r.Rebuild(ctx, "app_a", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, id := range []string{"u1", "u2", "u3"} {
		ent, err := st.GetEntitlement(ctx, "app_a", id)
		require.NoError(t, err)
		assert.Equal(t, repository.BillingCurrent, ent.Status)
	}

	n, err = r.Rebuild(ctx, "app_a", "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
