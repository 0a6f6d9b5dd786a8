package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	migrations "github.com/dropDatabas3/appbase/migrations/postgres"
)

// Requiere APPBASE_TEST_DSN apuntando a una base descartable.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("APPBASE_TEST_DSN")
	if dsn == "" {
		t.Skip("APPBASE_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.RunMigrations(ctx, migrations.FS)
	require.NoError(t, err)
	return s
}

func seedApp(t *testing.T, s *Store, monetization string) string {
	t.Helper()
	id := "app_" + uuid.NewString()[:8]
	_, err := s.Pool().Exec(context.Background(),
		`INSERT INTO apps (id, name, config) VALUES ($1, $1, jsonb_build_object('monetization', jsonb_build_object('type', $2::text)))`,
		id, monetization)
	require.NoError(t, err)
	return id
}

func seedSubject(t *testing.T, s *Store, tenant string) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.Subjects().CreateSubject(context.Background(), repository.Subject{TenantID: tenant, ID: id}))
	return id
}

func TestPGMigrationsAreIdempotent(t *testing.T) {
	s := openTestStore(t)
	n, err := s.RunMigrations(context.Background(), migrations.FS)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func TestPGAppAndAccounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	app := seedApp(t, s, repository.MonetizationPaymentRequired)

	a, err := s.Apps().GetApp(ctx, app)
	require.NoError(t, err)
	assert.True(t, a.LoginEnabled())

	_, err = s.Apps().GetApp(ctx, "missing-app")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	acct := "acct_" + uuid.NewString()[:8]
	_, err = s.Pool().Exec(ctx, `INSERT INTO stripe_accounts (stripe_user_id, app_id) VALUES ($1, $2)`, acct, app)
	require.NoError(t, err)

	owner, err := s.Apps().AccountOwner(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, app, owner)

	require.NoError(t, s.Apps().UpdateConnectedAccount(ctx, repository.ConnectedAccount{AccountID: acct, Status: "deauthorized"}))
	_, err = s.Apps().AccountOwner(ctx, acct)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPGSessionsTenantScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := seedApp(t, s, "login_required"), seedApp(t, s, "login_required")
	u := seedSubject(t, s, a)
	now := time.Now().UTC()

	require.NoError(t, s.Sessions().CreateSession(ctx, repository.Session{
		TenantID: a, SubjectID: u, Digest: "d1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}))

	_, err := s.Sessions().GetSession(ctx, b, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := s.Sessions().GetSession(ctx, a, "d1")
	require.NoError(t, err)
	assert.Equal(t, u, got.SubjectID)

	require.NoError(t, s.Sessions().DeleteSession(ctx, a, "d1"))
	require.NoError(t, s.Sessions().DeleteSession(ctx, a, "d1"))
}

func TestPGUpsertIdentityReturnsWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := seedApp(t, s, "login_required")
	u1, u2 := seedSubject(t, s, a), seedSubject(t, s, a)

	w1, err := s.Identities().UpsertIdentity(ctx, repository.Identity{TenantID: a, Provider: "google", ProviderUserID: "g1", SubjectID: u1})
	require.NoError(t, err)
	w2, err := s.Identities().UpsertIdentity(ctx, repository.Identity{TenantID: a, Provider: "google", ProviderUserID: "g1", SubjectID: u2})
	require.NoError(t, err)
	assert.Equal(t, u1, w1)
	assert.Equal(t, u1, w2)
}

func TestPGLedgerLastWriteWinsAndConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := seedApp(t, s, "payment_required"), seedApp(t, s, "payment_required")
	u := uuid.NewString()
	subID := "sub_" + uuid.NewString()[:8]
	t0 := time.Unix(1_700_000_000, 0).UTC()
	end1, end2 := t0.Add(24*time.Hour), t0.Add(48*time.Hour)

	newer := repository.Subscription{ID: subID, TenantID: a, SubjectID: u, Status: repository.SubPastDue,
		CurrentPeriodEnd: &end2, Version: repository.Version{At: t0, Rank: 1}}
	older := repository.Subscription{ID: subID, TenantID: a, SubjectID: u, Status: repository.SubActive,
		CurrentPeriodEnd: &end1, Version: repository.Version{At: t0, Rank: 0}}

	applied, err := s.Ledger().UpsertSubscription(ctx, newer)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.Ledger().UpsertSubscription(ctx, older)
	require.NoError(t, err)
	assert.False(t, applied)

	subs, err := s.Ledger().ListSubscriptions(ctx, a, u)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, repository.SubPastDue, subs[0].Status)
	assert.True(t, subs[0].CurrentPeriodEnd.Equal(end2))

	cross := newer
	cross.TenantID = b
	cross.Version.At = t0.Add(time.Minute)
	_, err = s.Ledger().UpsertSubscription(ctx, cross)
	assert.ErrorIs(t, err, repository.ErrConflict)

	payID := "pi_" + uuid.NewString()[:8]
	paid := t0.Add(time.Hour)
	_, err = s.Ledger().UpsertPayment(ctx, repository.Payment{ID: payID, TenantID: a, SubjectID: u,
		Status: repository.PaySucceeded, Refunded: true, RefundedAmount: 100, Version: repository.Version{At: t0.Add(2 * time.Hour), Rank: 3}})
	require.NoError(t, err)
	_, err = s.Ledger().UpsertPayment(ctx, repository.Payment{ID: payID, TenantID: a, SubjectID: u, Amount: 100,
		Status: repository.PaySucceeded, PaidAt: &paid, Version: repository.Version{At: t0.Add(time.Hour), Rank: 2}})
	require.NoError(t, err)

	earlier := t0.Add(30 * time.Minute)
	applied, err = s.Ledger().UpsertPayment(ctx, repository.Payment{ID: payID, TenantID: a, SubjectID: u, Amount: 100,
		Status: repository.PaySucceeded, RefundedAmount: 150, PaidAt: &earlier, Version: repository.Version{At: t0.Add(90 * time.Minute), Rank: 2}})
	require.NoError(t, err)
	assert.False(t, applied)

	pays, err := s.Ledger().ListPayments(ctx, a, u)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.True(t, pays[0].Refunded)
	assert.EqualValues(t, 150, pays[0].RefundedAmount)
	require.NotNil(t, pays[0].PaidAt)
	assert.True(t, pays[0].PaidAt.Equal(earlier))

	ids, err := s.Ledger().ListBilledSubjects(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{u}, ids)

	require.NoError(t, s.Entitlements().PutEntitlement(ctx, repository.Entitlement{
		TenantID: a, SubjectID: u, Status: repository.BillingPastDue, AccessUntil: end2, ComputedAt: t0}))
	e, err := s.Entitlements().GetEntitlement(ctx, a, u)
	require.NoError(t, err)
	assert.Equal(t, repository.BillingPastDue, e.Status)
}
