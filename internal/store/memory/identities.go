package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

func (s *Store) FindIdentity(ctx context.Context, tenantID, provider, providerUserID string) (*repository.Identity, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[identityKey{tenantID, provider, providerUserID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &id, nil
}

// UpsertIdentity emula INSERT ... ON CONFLICT DO UPDATE ... RETURNING end_user_id:
// si la tripleta existe gana el subject ya guardado.
func (s *Store) UpsertIdentity(ctx context.Context, id repository.Identity) (string, error) {
	if err := repository.RequireTenant(id.TenantID); err != nil {
		return "", err
	}
	if id.Provider == "" || id.ProviderUserID == "" || id.SubjectID == "" {
		return "", repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := identityKey{id.TenantID, id.Provider, id.ProviderUserID}
	if cur, ok := s.identities[k]; ok {
		cur.LastLoginAt = id.LastLoginAt
		if id.Email != "" {
			cur.Email = id.Email
		}
		s.identities[k] = cur
		return cur.SubjectID, nil
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	s.identities[k] = id
	return id.SubjectID, nil
}

func (s *Store) CreatePasswordHash(ctx context.Context, tenantID, subjectID, hash string) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subjectKey{tenantID, subjectID}
	if _, ok := s.passwords[k]; ok {
		return repository.ErrConflict
	}
	s.passwords[k] = hash
	return nil
}

func (s *Store) GetPasswordHash(ctx context.Context, tenantID, subjectID string) (string, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.passwords[subjectKey{tenantID, subjectID}]
	if !ok {
		return "", repository.ErrNotFound
	}
	return h, nil
}
