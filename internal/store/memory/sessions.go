package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

func (s *Store) CreateSession(ctx context.Context, sess repository.Session) error {
	if err := repository.RequireTenant(sess.TenantID); err != nil || sess.Digest == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := sessionKey{sess.TenantID, sess.Digest}
	if _, ok := s.sessions[k]; ok {
		return repository.ErrConflict
	}
	s.sessions[k] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, tenantID, digest string) (*repository.Session, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey{tenantID, digest}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, tenantID, digest string) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey{tenantID, digest})
	return nil
}

func (s *Store) DeleteSubjectSessions(ctx context.Context, tenantID, subjectID string) (int, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.sessions {
		if k.tenant == tenantID && sess.SubjectID == subjectID {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}
