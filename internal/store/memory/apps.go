package memory

import (
	"context"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

func (s *Store) GetApp(ctx context.Context, appID string) (*repository.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[appID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *Store) AccountOwner(ctx context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[accountID]
	if !ok || acc.Status != "active" {
		return "", repository.ErrNotFound
	}
	return acc.AppID, nil
}

func (s *Store) AppAccount(ctx context.Context, appID string) (*repository.ConnectedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *repository.ConnectedAccount
	for _, acc := range s.accounts {
		if acc.AppID != appID || acc.Status != "active" {
			continue
		}
		if best == nil || acc.UpdatedAt.After(best.UpdatedAt) {
			a := acc
			best = &a
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (s *Store) UpdateConnectedAccount(ctx context.Context, acc repository.ConnectedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[acc.AccountID]
	if !ok {
		return repository.ErrNotFound
	}
	if acc.Status != "" {
		cur.Status = acc.Status
	}
	cur.ChargesEnabled = acc.ChargesEnabled
	cur.UpdatedAt = acc.UpdatedAt
	s.accounts[acc.AccountID] = cur
	return nil
}
