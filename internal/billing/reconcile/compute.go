// Package reconcile deriva el entitlement de un subject a partir del ledger
// de suscripciones y pagos.
package reconcile

import (
	"sort"
	"time"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

const (
	DefaultPastDueGrace  = 7 * 24 * time.Hour
	DefaultOneTimeAccess = 30 * 24 * time.Hour
)

// Config son las ventanas de acceso. Cero usa el default.
type Config struct {
	PastDueGrace  time.Duration
	OneTimeAccess time.Duration
}

func (c Config) withDefaults() Config {
	if c.PastDueGrace <= 0 {
		c.PastDueGrace = DefaultPastDueGrace
	}
	if c.OneTimeAccess <= 0 {
		c.OneTimeAccess = DefaultOneTimeAccess
	}
	return c
}

// Result es el estado derivado. Source es el id del hecho que lo decidió.
type Result struct {
	Status      repository.BillingStatus
	AccessUntil time.Time
	Source      string
}

// tiers de relevancia; -1 = no participa (incomplete, paused, desconocido)
func tier(status string) int {
	switch status {
	case repository.SubActive, repository.SubTrialing:
		return 0
	case repository.SubPastDue:
		return 1
	case repository.SubCanceled, repository.SubUnpaid, repository.SubIncompleteExpired:
		return 2
	default:
		return -1
	}
}

// Compute es puro: mismo ledger y mismo now, mismo resultado, sin importar
// el orden de los slices.
func Compute(subs []repository.Subscription, payments []repository.Payment, now time.Time, cfg Config) Result {
	cfg = cfg.withDefaults()

	if s, ok := mostRelevant(subs); ok {
		return fromSubscription(s, now, cfg)
	}
	return fromPayments(payments, now, cfg)
}

// mostRelevant ordena por tier, luego period end más tardío, luego version
// más nueva y por último id: orden total.
func mostRelevant(subs []repository.Subscription) (repository.Subscription, bool) {
	cand := make([]repository.Subscription, 0, len(subs))
	for _, s := range subs {
		if tier(s.Status) >= 0 {
			cand = append(cand, s)
		}
	}
	if len(cand) == 0 {
		return repository.Subscription{}, false
	}
	sort.SliceStable(cand, func(i, j int) bool {
		a, b := cand[i], cand[j]
		if ta, tb := tier(a.Status), tier(b.Status); ta != tb {
			return ta < tb
		}
		if c := cmpTime(a.CurrentPeriodEnd, b.CurrentPeriodEnd); c != 0 {
			return c > 0
		}
		if !a.Version.At.Equal(b.Version.At) {
			return a.Version.At.After(b.Version.At)
		}
		return a.ID < b.ID
	})
	return cand[0], true
}

func fromSubscription(s repository.Subscription, now time.Time, cfg Config) Result {
	r := Result{Source: s.ID}
	switch tier(s.Status) {
	case 0:
		r.Status = repository.BillingCurrent
		var until *time.Time
		if s.Status == repository.SubTrialing {
			until = minTime(s.TrialEnd, s.CurrentPeriodEnd)
		} else {
			until = minTime(s.CurrentPeriodEnd, s.CancelAt)
		}
		r.AccessUntil = orNow(until, now)
	case 1:
		r.Status = repository.BillingPastDue
		r.AccessUntil = orNow(s.CurrentPeriodEnd, now).Add(cfg.PastDueGrace)
	default:
		// terminal: el period end conocido se conserva aunque ya haya pasado
		r.Status = repository.BillingCancelled
		r.AccessUntil = orNow(s.CurrentPeriodEnd, now)
	}
	return r
}

// fromPayments: sin suscripciones, el pago exitoso más reciente y no
// reembolsado da acceso por OneTimeAccess desde paid_at.
func fromPayments(payments []repository.Payment, now time.Time, cfg Config) Result {
	var (
		best   *repository.Payment
		bestAt time.Time
	)
	for i := range payments {
		p := &payments[i]
		if p.Status != repository.PaySucceeded || p.Refunded {
			continue
		}
		at := p.Version.At
		if p.PaidAt != nil {
			at = *p.PaidAt
		}
		if best == nil || at.After(bestAt) || (at.Equal(bestAt) && p.ID < best.ID) {
			best, bestAt = p, at
		}
	}
	if best == nil {
		return Result{Status: repository.BillingCancelled, AccessUntil: now}
	}
	until := bestAt.Add(cfg.OneTimeAccess)
	if until.After(now) {
		return Result{Status: repository.BillingCurrent, AccessUntil: until, Source: best.ID}
	}
	return Result{Status: repository.BillingCancelled, AccessUntil: until, Source: best.ID}
}

// cmpTime: nil es el menor valor.
func cmpTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

// minTime ignora nils.
func minTime(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.Before(*b) {
		return a
	}
	return b
}

func orNow(t *time.Time, now time.Time) time.Time {
	if t == nil {
		return now
	}
	return *t
}
