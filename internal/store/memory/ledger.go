package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

func (s *Store) UpsertSubscription(ctx context.Context, sub repository.Subscription) (bool, error) {
	if err := repository.RequireTenant(sub.TenantID); err != nil || sub.ID == "" || sub.SubjectID == "" {
		return false, repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subs[sub.ID]
	if ok {
		if cur.TenantID != sub.TenantID || cur.SubjectID != sub.SubjectID {
			return false, repository.ErrConflict
		}
		if sub.Version.Before(cur.Version) {
			return false, nil
		}
		if sub.CustomerID == "" {
			sub.CustomerID = cur.CustomerID
		}
	}
	sub.CurrentPeriodStart = copyTime(sub.CurrentPeriodStart)
	sub.CurrentPeriodEnd = copyTime(sub.CurrentPeriodEnd)
	sub.CancelAt = copyTime(sub.CancelAt)
	sub.CanceledAt = copyTime(sub.CanceledAt)
	sub.TrialEnd = copyTime(sub.TrialEnd)
	s.subs[sub.ID] = sub
	return true, nil
}

func (s *Store) UpsertPayment(ctx context.Context, p repository.Payment) (bool, error) {
	if err := repository.RequireTenant(p.TenantID); err != nil || p.ID == "" || p.SubjectID == "" {
		return false, repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.payments[p.ID]
	if !ok {
		p.PaidAt = copyTime(p.PaidAt)
		s.payments[p.ID] = p
		return true, nil
	}
	if cur.TenantID != p.TenantID || cur.SubjectID != p.SubjectID {
		return false, repository.ErrConflict
	}

	merged := cur
	// monótonos, independientes del orden
	merged.Refunded = cur.Refunded || p.Refunded
	if p.RefundedAmount > merged.RefundedAmount {
		merged.RefundedAmount = p.RefundedAmount
	}
	if p.PaidAt != nil && (merged.PaidAt == nil || p.PaidAt.Before(*merged.PaidAt)) {
		merged.PaidAt = copyTime(p.PaidAt)
	}

	fresh := !p.Version.Before(cur.Version)
	if fresh {
		if p.Amount != 0 {
			merged.Amount = p.Amount
		}
		if p.Currency != "" {
			merged.Currency = p.Currency
		}
		if p.CustomerID != "" {
			merged.CustomerID = p.CustomerID
		}
		if p.Status != "" {
			merged.Status = p.Status
		}
		merged.Version = p.Version
	}
	s.payments[p.ID] = merged
	// applied = ganó la versión entrante, igual que en pg
	return fresh, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, c repository.Customer) error {
	if err := repository.RequireTenant(c.TenantID); err != nil || c.CustomerID == "" || c.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.customers[c.CustomerID]; ok && (cur.TenantID != c.TenantID || cur.SubjectID != c.SubjectID) {
		return repository.ErrConflict
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	s.customers[c.CustomerID] = c
	return nil
}

func (s *Store) FindCustomer(ctx context.Context, tenantID, subjectID string) (*repository.Customer, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *repository.Customer
	for _, c := range s.customers {
		if c.TenantID != tenantID || c.SubjectID != subjectID {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			cc := c
			best = &cc
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return best, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID, subjectID string) ([]repository.Subscription, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Subscription
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.SubjectID == subjectID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetPayment(ctx context.Context, tenantID, paymentID string) (*repository.Payment, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	p.PaidAt = copyTime(p.PaidAt)
	return &p, nil
}

func (s *Store) ListPayments(ctx context.Context, tenantID, subjectID string) ([]repository.Payment, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Payment
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.SubjectID == subjectID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBilledSubjects(ctx context.Context, tenantID string) ([]string, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := map[string]struct{}{}
	for _, sub := range s.subs {
		if sub.TenantID == tenantID {
			set[sub.SubjectID] = struct{}{}
		}
	}
	for _, p := range s.payments {
		if p.TenantID == tenantID {
			set[p.SubjectID] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) PutEntitlement(ctx context.Context, e repository.Entitlement) error {
	if err := repository.RequireTenant(e.TenantID); err != nil || e.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entitlements[subjectKey{e.TenantID, e.SubjectID}] = e
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, tenantID, subjectID string) (*repository.Entitlement, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entitlements[subjectKey{tenantID, subjectID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}
