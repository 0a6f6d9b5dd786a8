package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/metrics"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/security/token"
)

// DefaultTTL: 30 días.
const DefaultTTL = 720 * time.Hour

var (
	ErrInvalidInput = errors.New("session: tenant and subject are required")
	// ErrStore envuelve fallas de storage al emitir o revocar (reintentable).
	ErrStore = errors.New("session: store unavailable")
)

// ClientContext es metadata del cliente que se guarda con la sesión.
type ClientContext struct {
	IP        string
	UserAgent string
}

// Issued es lo que devuelve Issue. RawToken no se vuelve a poder obtener.
type Issued struct {
	RawToken  string
	Digest    string
	ExpiresAt time.Time
}

type Options struct {
	TTL     time.Duration
	Cookies CookiePolicy
	// Now es el reloj; nil = time.Now.
	Now func() time.Time
}

type Manager struct {
	repo    repository.SessionRepository
	codec   *token.Codec
	ttl     time.Duration
	cookies CookiePolicy
	now     func() time.Time
}

func NewManager(repo repository.SessionRepository, codec *token.Codec, opts Options) *Manager {
	m := &Manager{repo: repo, codec: codec, ttl: opts.TTL, cookies: opts.Cookies, now: opts.Now}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) Cookies() CookiePolicy { return m.cookies }

func (m *Manager) Now() time.Time { return m.now().UTC() }

// Issue crea una sesión nueva para (tenant, subject).
func (m *Manager) Issue(ctx context.Context, tenantID, subjectID string, cc ClientContext) (Issued, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("session"), logger.Op("Issue"),
		logger.TenantID(tenantID))

	if tenantID == "" || subjectID == "" {
		return Issued{}, ErrInvalidInput
	}
	raw, digest, err := m.codec.Mint()
	if err != nil {
		return Issued{}, err
	}
	now := m.Now()
	rec := repository.Session{
		TenantID:  tenantID,
		SubjectID: subjectID,
		Digest:    digest,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
		IP:        cc.IP,
		UserAgent: cc.UserAgent,
	}
	if err := m.repo.CreateSession(ctx, rec); err != nil {
		log.Error("create session failed", logger.Err(err))
		return Issued{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	metrics.SessionsIssued.Inc()
	log.Info("session issued", logger.SubjectID(subjectID), logger.DigestPrefix(digest))
	return Issued{RawToken: raw, Digest: digest, ExpiresAt: rec.ExpiresAt}, nil
}

// Validate resuelve un token crudo a Principal. false = no hay sesión, sin
// distinguir entre ausente, vencida, adulterada o de otro tenant.
func (m *Manager) Validate(ctx context.Context, tenantID, rawToken string) (Principal, bool) {
	if tenantID == "" || rawToken == "" {
		metrics.SessionValidations.WithLabelValues("absent").Inc()
		return Principal{}, false
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("session"), logger.Op("Validate"),
		logger.TenantID(tenantID))

	digest := m.codec.Digest(rawToken)
	rec, err := m.repo.GetSession(ctx, tenantID, digest)
	if err != nil {
		if !repository.IsNotFound(err) {
			log.Warn("session lookup failed", logger.Err(err))
			metrics.SessionValidations.WithLabelValues("error").Inc()
		} else {
			metrics.SessionValidations.WithLabelValues("absent").Inc()
		}
		return Principal{}, false
	}
	if rec.TenantID != tenantID {
		log.Warn("session tenant mismatch", logger.DigestPrefix(digest))
		metrics.SessionValidations.WithLabelValues("absent").Inc()
		return Principal{}, false
	}
	if !rec.ExpiresAt.After(m.Now()) {
		metrics.SessionValidations.WithLabelValues("expired").Inc()
		if err := m.repo.DeleteSession(ctx, tenantID, digest); err != nil {
			log.Debug("expired session cleanup failed", logger.Err(err))
		}
		return Principal{}, false
	}

	metrics.SessionValidations.WithLabelValues("valid").Inc()
	return Principal{
		tenantID:  rec.TenantID,
		subjectID: rec.SubjectID,
		digest:    rec.Digest,
		expiresAt: rec.ExpiresAt,
	}, true
}

// Authenticate busca la cookie del tenant y, si no está o no valida, la
// cookie legacy. Ambas se validan contra el tenant pedido.
func (m *Manager) Authenticate(r *http.Request, tenantID string) (Principal, bool) {
	if c, err := r.Cookie(CookieName(tenantID)); err == nil && c.Value != "" {
		if p, ok := m.Validate(r.Context(), tenantID, c.Value); ok {
			return p, true
		}
	}
	if m.cookies.LegacyName != "" {
		if c, err := r.Cookie(m.cookies.LegacyName); err == nil && c.Value != "" {
			return m.Validate(r.Context(), tenantID, c.Value)
		}
	}
	return Principal{}, false
}

// Revoke borra la sesión. Idempotente.
func (m *Manager) Revoke(ctx context.Context, tenantID, digest string) error {
	if tenantID == "" || digest == "" {
		return nil
	}
	if err := m.repo.DeleteSession(ctx, tenantID, digest); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	logger.From(ctx).Info("session revoked", logger.Component("session"), logger.TenantID(tenantID),
		logger.DigestPrefix(digest))
	return nil
}

// RevokeToken revoca a partir del token crudo.
func (m *Manager) RevokeToken(ctx context.Context, tenantID, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	return m.Revoke(ctx, tenantID, m.codec.Digest(rawToken))
}

// RevokeAll borra todas las sesiones del subject en el tenant.
func (m *Manager) RevokeAll(ctx context.Context, tenantID, subjectID string) (int, error) {
	if tenantID == "" || subjectID == "" {
		return 0, ErrInvalidInput
	}
	n, err := m.repo.DeleteSubjectSessions(ctx, tenantID, subjectID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	logger.From(ctx).Info("sessions revoked", logger.Component("session"), logger.TenantID(tenantID),
		logger.SubjectID(subjectID), logger.Count(n))
	return n, nil
}

// PurgeExpired borra sesiones vencidas de todos los tenants.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	return m.repo.DeleteExpired(ctx, m.Now())
}

// RunJanitor llama PurgeExpired cada interval hasta que ctx se cancele.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := logger.From(ctx).With(logger.Component("session"), logger.Op("Janitor"))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge expired sessions failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Info("expired sessions purged", logger.Count(n))
			}
		}
	}
}
