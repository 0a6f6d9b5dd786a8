package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/appbase/internal/billing/checkout"
	"github.com/dropDatabas3/appbase/internal/billing/reconcile"
	"github.com/dropDatabas3/appbase/internal/billing/webhook"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/http/controllers/apps"
	"github.com/dropDatabas3/appbase/internal/http/controllers/auth"
	"github.com/dropDatabas3/appbase/internal/http/controllers/billing"
	"github.com/dropDatabas3/appbase/internal/http/controllers/health"
	"github.com/dropDatabas3/appbase/internal/http/router"
	"github.com/dropDatabas3/appbase/internal/identity"
	"github.com/dropDatabas3/appbase/internal/infra/tenantcache"
	"github.com/dropDatabas3/appbase/internal/rate"
	"github.com/dropDatabas3/appbase/internal/security/password"
	"github.com/dropDatabas3/appbase/internal/security/token"
	"github.com/dropDatabas3/appbase/internal/session"
	"github.com/dropDatabas3/appbase/internal/store/memory"
)

const (
	whSecret = "whsec_router_test"
	appA     = "app_a"
	appB     = "app_b"
	appFree  = "app_free"
)

type env struct {
	h       http.Handler
	st      *memory.Store
	catalog *catalog
}

// catalog es un proveedor de pagos en memoria.
type catalog struct {
	prices   map[string]checkout.Price
	sessions []checkout.SessionRequest
}

func (c *catalog) GetPrice(ctx context.Context, accountID, priceID string) (*checkout.Price, error) {
	p, ok := c.prices[priceID]
	if !ok {
		return nil, checkout.ErrPriceNotFound
	}
	return &p, nil
}

func (c *catalog) ListPrices(ctx context.Context, accountID string) ([]checkout.Price, error) {
	out := make([]checkout.Price, 0, len(c.prices))
	for _, p := range c.prices {
		out = append(out, p)
	}
	return out, nil
}

func (c *catalog) CreateCheckoutSession(ctx context.Context, accountID string, req checkout.SessionRequest) (string, error) {
	c.sessions = append(c.sessions, req)
	return "https://checkout.example/cs_test", nil
}

func (c *catalog) CreatePortalSession(ctx context.Context, accountID, customerID, returnURL string) (string, error) {
	return "https://portal.example/" + customerID, nil
}

func newEnv(t *testing.T, loginLimit int) *env {
	t.Helper()
	st := memory.New()
	st.PutApp(repository.App{ID: appA, MonetizationType: repository.MonetizationPaymentRequired})
	st.PutApp(repository.App{ID: appB, MonetizationType: repository.MonetizationLoginRequired})
	st.PutApp(repository.App{ID: appFree, MonetizationType: repository.MonetizationNone})
	st.PutConnectedAccount(repository.ConnectedAccount{AccountID: "acct_a", AppID: appA})

	tenants := tenantcache.New(st.Apps(), nil, 0)
	linker := identity.NewLinker(st.Subjects(), st.Identities())
	passwords := identity.NewPasswords(linker, st.Subjects(), st.Identities(),
		password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}, password.DefaultPolicy)
	sessions := session.NewManager(st.Sessions(), token.NewCodec("pepper", 32), session.Options{
		TTL:     time.Hour,
		Cookies: session.CookiePolicy{Host: session.HostEnvironment{Env: "dev"}},
	})
	rec := reconcile.NewReconciler(st.Ledger(), st.Entitlements(), reconcile.Config{})

	cat := &catalog{prices: map[string]checkout.Price{
		"price_month": {ID: "price_month", AppID: appA, Active: true, Recurring: true, Interval: "month", IntervalCount: 1, Currency: "usd", UnitAmount: 900},
		"price_b":     {ID: "price_b", AppID: appB, Active: true, Currency: "usd", UnitAmount: 100},
	}}

	var limiter rate.Limiter
	if loginLimit > 0 {
		limiter = rate.NewMemoryLimiter(loginLimit, time.Minute)
	}
	h := router.New(router.Deps{
		Auth: auth.NewControllers(auth.Deps{
			Apps: tenants, Passwords: passwords, Sessions: sessions, Subjects: st.Subjects(),
		}),
		Webhook: billing.NewWebhookController(
			webhook.NewVerifier(whSecret, 0),
			webhook.NewDispatcher(tenants, st.Apps(), st.Ledger(), rec),
		),
		Entitlement:  billing.NewEntitlementController(rec),
		Checkout: billing.NewCheckoutController(
			checkout.NewService(st.Apps(), st.Subjects(), st.Ledger(), cat, checkout.URLs{}),
		),
		AppConfig:    apps.NewConfigController(tenants),
		Health:       health.NewHealthController(map[string]health.Pinger{"store": st}),
		Sessions:     sessions,
		LoginLimiter: limiter,
	})
	return &env{h: h, st: st, catalog: cat}
}

func (e *env) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, tenant string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName(tenant) {
			return c
		}
	}
	t.Fatalf("no session cookie for %s", tenant)
	return nil
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func signup(t *testing.T, e *env, tenant, email string) (string, *http.Cookie) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/"+tenant+"/password/signup",
		map[string]string{"email": email, "password": "correct horse 9"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		SubjectID string `json:"subject_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SubjectID, sessionCookie(t, w, tenant)
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t, 0)
	subject, cookie := signup(t, e, appA, "Ana@Example.com")
	assert.True(t, cookie.HttpOnly)
	assert.NotContains(t, cookie.Value, subject)

	w := e.do(t, http.MethodGet, "/apps/"+appA+"/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"ana@example.com"`)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	// la misma cookie presentada en otro tenant no autentica
	other := *cookie
	other.Name = session.CookieName(appB)
	w = e.do(t, http.MethodGet, "/apps/"+appB+"/me", nil, &other)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/apps/"+appA+"/logout", nil, cookie)
	require.Equal(t, http.StatusNoContent, w.Code)
	cleared := sessionCookie(t, w, appA)
	assert.Equal(t, -1, cleared.MaxAge)

	w = e.do(t, http.MethodGet, "/apps/"+appA+"/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))

	// logout sin sesión sigue siendo 204
	w = e.do(t, http.MethodPost, "/apps/"+appA+"/logout", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLoginAndLogoutAll(t *testing.T) {
	e := newEnv(t, 0)
	subject, first := signup(t, e, appB, "bo@example.com")

	creds := map[string]string{"email": "bo@example.com", "password": "correct horse 9"}
	w := e.do(t, http.MethodPost, "/auth/"+appB+"/password/login", creds)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), subject)
	second := sessionCookie(t, w, appB)

	w = e.do(t, http.MethodPost, "/apps/"+appB+"/logout-all", nil, second)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"revoked":2}`, w.Body.String())

	for _, c := range []*http.Cookie{first, second} {
		w = e.do(t, http.MethodGet, "/apps/"+appB+"/me", nil, c)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestPasswordErrors(t *testing.T) {
	e := newEnv(t, 0)
	signup(t, e, appA, "dup@example.com")

	cases := []struct {
		name   string
		path   string
		body   map[string]string
		status int
		code   string
	}{
		{"duplicate", "/auth/app_a/password/signup", map[string]string{"email": "DUP@example.com", "password": "another pass 1"}, http.StatusConflict, "EMAIL_ALREADY_IN_USE"},
		{"weak", "/auth/app_a/password/signup", map[string]string{"email": "w@example.com", "password": "short"}, http.StatusUnprocessableEntity, "PASSWORD_TOO_WEAK"},
		{"bad email", "/auth/app_a/password/signup", map[string]string{"email": "nope", "password": "long enough 1"}, http.StatusBadRequest, "INVALID_FORMAT"},
		{"missing", "/auth/app_a/password/login", map[string]string{"email": "dup@example.com"}, http.StatusBadRequest, "MISSING_FIELDS"},
		{"wrong password", "/auth/app_a/password/login", map[string]string{"email": "dup@example.com", "password": "wrong wrong 1"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown user", "/auth/app_a/password/login", map[string]string{"email": "ghost@example.com", "password": "wrong wrong 1"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"other tenant", "/auth/app_b/password/login", map[string]string{"email": "dup@example.com", "password": "correct horse 9"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown app", "/auth/app_zzz/password/login", map[string]string{"email": "dup@example.com", "password": "correct horse 9"}, http.StatusNotFound, "APP_NOT_FOUND"},
		{"login disabled", "/auth/app_free/password/signup", map[string]string{"email": "f@example.com", "password": "correct horse 9"}, http.StatusForbidden, "LOGIN_DISABLED"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, c.path, c.body)
			assert.Equal(t, c.status, w.Code, w.Body.String())
			assert.Equal(t, c.code, errorCode(t, w))
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRejectsNonJSONBody(t *testing.T) {
	e := newEnv(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/auth/app_a/password/login", strings.NewReader("email=a"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_JSON", errorCode(t, w))
}

func TestLoginRateLimitedPerTenant(t *testing.T) {
	e := newEnv(t, 2)
	creds := map[string]string{"email": "x@example.com", "password": "whatever 12"}
	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodPost, "/auth/app_a/password/login", creds)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := e.do(t, http.MethodPost, "/auth/app_a/password/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// otro tenant tiene su propio cupo
	w = e.do(t, http.MethodPost, "/auth/app_b/password/login", creds)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func postWebhook(t *testing.T, e *env, payload []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(webhook.SignatureHeader, header)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func signed(payload []byte) string {
	return stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    whSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestWebhookToEntitlement(t *testing.T) {
	e := newEnv(t, 0)
	subject, cookie := signup(t, e, appA, "pay@example.com")

	w := e.do(t, http.MethodGet, "/apps/"+appA+"/me/entitlement", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_1",
		"object":  "event",
		"type":    "customer.subscription.created",
		"created": time.Now().Unix(),
		"account": "acct_a",
		"data": map[string]any{"object": map[string]any{
			"id":                 "sub_1",
			"object":             "subscription",
			"customer":           "cus_1",
			"status":             "active",
			"current_period_end": periodEnd.Unix(),
			"metadata":           map[string]string{"app_id": appA, "end_user_id": subject},
		}},
	})
	require.NoError(t, err)

	w = postWebhook(t, e, payload, signed(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/apps/"+appA+"/me/entitlement", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var ent struct {
		Status      string    `json:"status"`
		AccessUntil time.Time `json:"access_until"`
		Source      string    `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ent))
	assert.Equal(t, "current", ent.Status)
	assert.True(t, periodEnd.Equal(ent.AccessUntil))
	assert.Equal(t, "sub_1", ent.Source)

	// body adulterado después de firmar
	tampered := bytes.Replace(payload, []byte(`"active"`), []byte(`"trialing"`), 1)
	w = postWebhook(t, e, tampered, signed(payload))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", errorCode(t, w))

	w = postWebhook(t, e, payload, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookWithoutMetadataIsAcknowledged(t *testing.T) {
	e := newEnv(t, 0)
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.subscription.updated","created":1740000000,` +
		`"data":{"object":{"id":"sub_9","object":"subscription","status":"active"}}}`)
	w := postWebhook(t, e, payload, signed(payload))
	assert.Equal(t, http.StatusOK, w.Code)

	subs, err := e.st.Ledger().ListBilledSubjects(context.Background(), appA)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestHealthAndFallbacks(t *testing.T) {
	e := newEnv(t, 0)

	w := e.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","components":{"store":"up"}}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = e.do(t, http.MethodGet, "/auth/app_a/password/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAppConfig(t *testing.T) {
	e := newEnv(t, 0)
	e.st.PutApp(repository.App{ID: "app_cfg", Config: json.RawMessage(`{"theme":"dark"}`)})

	w := e.do(t, http.MethodGet, "/apps/app_a/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/apps/app_cfg/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"theme":"dark"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/apps/app_missing/config", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "APP_NOT_FOUND", errorCode(t, w))
}

func TestStripePricesAreScopedToApp(t *testing.T) {
	e := newEnv(t, 0)

	w := e.do(t, http.MethodGet, "/apps/app_a/stripe/prices", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"data":[{"id":"price_month","currency":"usd","unit_amount":900,
		"recurring":{"interval":"month","interval_count":1}}],"count":1}`, w.Body.String())

	// app_b no tiene cuenta conectada
	w = e.do(t, http.MethodGet, "/apps/app_b/stripe/prices", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutRedirect(t *testing.T) {
	e := newEnv(t, 0)
	subject, cookie := signup(t, e, appA, "buyer@example.com")

	w := e.do(t, http.MethodGet, "/apps/app_a/stripe/checkout/prices/price_month", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/apps/app_a/stripe/checkout/prices/price_month", nil, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "https://checkout.example/cs_test", w.Header().Get("Location"))
	require.Len(t, e.catalog.sessions, 1)
	got := e.catalog.sessions[0]
	assert.Equal(t, checkout.ModeSubscription, got.Mode)
	assert.Equal(t, map[string]string{webhook.MetaAppID: appA, webhook.MetaEndUserID: subject}, got.Metadata)
	assert.Equal(t, "buyer@example.com", got.Email)

	req := httptest.NewRequest(http.MethodGet, "/apps/app_a/stripe/checkout/prices/price_month", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"url":"https://checkout.example/cs_test"}`, rr.Body.String())

	w = e.do(t, http.MethodGet, "/apps/app_a/stripe/checkout/prices/price_b", nil, cookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/apps/app_a/stripe/checkout/prices/price_nope", nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortalNeedsCustomer(t *testing.T) {
	e := newEnv(t, 0)
	subject, cookie := signup(t, e, appA, "portal@example.com")

	w := e.do(t, http.MethodGet, "/apps/app_a/stripe/portal", nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, e.st.UpsertCustomer(context.Background(), repository.Customer{
		TenantID: appA, SubjectID: subject, CustomerID: "cus_portal", AccountID: "acct_a",
	}))

	w = e.do(t, http.MethodGet, "/apps/app_a/stripe/portal", nil, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "https://portal.example/cus_portal", w.Header().Get("Location"))
}
