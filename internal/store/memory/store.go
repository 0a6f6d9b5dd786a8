// Package memory implementa repository.Store en memoria.
//
// Se usa en tests y con STORAGE_DRIVER=memory. Respeta las mismas reglas que
// el adapter PostgreSQL: unicidad por tenant, upserts last-write-wins por
// Version y borrados idempotentes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type Store struct {
	mu sync.RWMutex

	apps     map[string]repository.App
	accounts map[string]repository.ConnectedAccount

	subjects   map[subjectKey]repository.Subject
	identities map[identityKey]repository.Identity
	passwords  map[subjectKey]string
	sessions   map[sessionKey]repository.Session

	subs         map[string]repository.Subscription
	payments     map[string]repository.Payment
	customers    map[string]repository.Customer
	entitlements map[subjectKey]repository.Entitlement
}

type subjectKey struct{ tenant, subject string }
type identityKey struct{ tenant, provider, providerUserID string }
type sessionKey struct{ tenant, digest string }

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		apps:         map[string]repository.App{},
		accounts:     map[string]repository.ConnectedAccount{},
		subjects:     map[subjectKey]repository.Subject{},
		identities:   map[identityKey]repository.Identity{},
		passwords:    map[subjectKey]string{},
		sessions:     map[sessionKey]repository.Session{},
		subs:         map[string]repository.Subscription{},
		payments:     map[string]repository.Payment{},
		customers:    map[string]repository.Customer{},
		entitlements: map[subjectKey]repository.Entitlement{},
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Apps() repository.AppRepository                 { return s }
func (s *Store) Subjects() repository.SubjectRepository         { return s }
func (s *Store) Identities() repository.IdentityRepository      { return s }
func (s *Store) Sessions() repository.SessionRepository         { return s }
func (s *Store) Ledger() repository.LedgerRepository            { return s }
func (s *Store) Entitlements() repository.EntitlementRepository { return s }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// PutApp registra (o reemplaza) una app. Solo para seed y tests.
func (s *Store) PutApp(a repository.App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.apps[a.ID] = a
}

// PutConnectedAccount vincula una cuenta conectada con su app. Solo para seed y tests.
func (s *Store) PutConnectedAccount(acc repository.ConnectedAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.Status == "" {
		acc.Status = "active"
	}
	s.accounts[acc.AccountID] = acc
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
