package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

func (s *Store) CreateSubject(ctx context.Context, sub repository.Subject) error {
	if err := repository.RequireTenant(sub.TenantID); err != nil || sub.ID == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subjectKey{sub.TenantID, sub.ID}
	if _, ok := s.subjects[k]; ok {
		return repository.ErrConflict
	}
	s.subjects[k] = sub
	return nil
}

func (s *Store) GetSubject(ctx context.Context, tenantID, subjectID string) (*repository.Subject, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[subjectKey{tenantID, subjectID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (s *Store) TouchSubject(ctx context.Context, tenantID, subjectID string, p repository.Profile, at time.Time) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := subjectKey{tenantID, subjectID}
	sub, ok := s.subjects[k]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Email != "" {
		sub.Email = p.Email
	}
	if p.DisplayName != "" {
		sub.DisplayName = p.DisplayName
	}
	if p.AvatarURL != "" {
		sub.AvatarURL = p.AvatarURL
	}
	sub.LastLoginAt = at
	s.subjects[k] = sub
	return nil
}

func (s *Store) DeleteSubject(ctx context.Context, tenantID, subjectID string) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subjects, subjectKey{tenantID, subjectID})
	delete(s.passwords, subjectKey{tenantID, subjectID})
	return nil
}
