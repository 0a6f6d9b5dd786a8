// Package identity resuelve perfiles de proveedores (OAuth, password) a un
// subject estable por tenant.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

var (
	ErrInvalidInput = errors.New("identity: tenant, provider and provider user id are required")
	// ErrLinkFailed: el upsert falló y el reintento de lookup tampoco encontró
	// la identidad. Reintentable por el cliente.
	ErrLinkFailed = errors.New("identity: link failed")
)

type Linker struct {
	subjects   repository.SubjectRepository
	identities repository.IdentityRepository
	now        func() time.Time
	newID      func() string
}

func NewLinker(subjects repository.SubjectRepository, identities repository.IdentityRepository) *Linker {
	return &Linker{
		subjects:   subjects,
		identities: identities,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// LinkOrCreate devuelve el subject de (tenant, provider, providerUserID),
// creándolo si es el primer login. Llamadas concurrentes con la misma
// tripleta convergen en un único subject: la unicidad la da el conflict
// target del upsert, no un lock.
func (l *Linker) LinkOrCreate(ctx context.Context, tenantID, provider, providerUserID string, p repository.Profile) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("identity"), logger.Op("LinkOrCreate"),
		logger.TenantID(tenantID), logger.Provider(provider))

	provider = strings.ToLower(strings.TrimSpace(provider))
	providerUserID = strings.TrimSpace(providerUserID)
	if tenantID == "" || provider == "" || providerUserID == "" {
		return "", ErrInvalidInput
	}
	now := l.now().UTC()

	if id, err := l.identities.FindIdentity(ctx, tenantID, provider, providerUserID); err == nil {
		l.touch(ctx, log, tenantID, id.SubjectID, p, now)
		return id.SubjectID, nil
	} else if !repository.IsNotFound(err) {
		return "", fmt.Errorf("identity: lookup: %w", err)
	}

	candidate := l.newID()
	if err := l.subjects.CreateSubject(ctx, repository.Subject{
		TenantID:    tenantID,
		ID:          candidate,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		CreatedAt:   now,
		LastLoginAt: now,
	}); err != nil {
		return "", fmt.Errorf("identity: create subject: %w", err)
	}

	winner, err := l.identities.UpsertIdentity(ctx, repository.Identity{
		TenantID:       tenantID,
		SubjectID:      candidate,
		Provider:       provider,
		ProviderUserID: providerUserID,
		Email:          p.Email,
		CreatedAt:      now,
		LastLoginAt:    now,
	})
	if err != nil {
		log.Warn("identity upsert failed, retrying lookup", logger.Err(err))
		l.dropOrphan(ctx, log, tenantID, candidate)

		id, lerr := l.identities.FindIdentity(ctx, tenantID, provider, providerUserID)
		if lerr != nil {
			log.Error("identity link failed", logger.Err(lerr))
			return "", fmt.Errorf("%w: %v", ErrLinkFailed, err)
		}
		l.touch(ctx, log, tenantID, id.SubjectID, p, now)
		return id.SubjectID, nil
	}

	if winner != candidate {
		// perdimos la carrera: otro request ya vinculó la identidad
		log.Info("identity race lost, using existing subject", logger.SubjectID(winner))
		l.dropOrphan(ctx, log, tenantID, candidate)
		l.touch(ctx, log, tenantID, winner, p, now)
		return winner, nil
	}

	log.Info("subject created", logger.SubjectID(candidate))
	return candidate, nil
}

func (l *Linker) touch(ctx context.Context, log *zap.Logger, tenantID, subjectID string, p repository.Profile, at time.Time) {
	if err := l.subjects.TouchSubject(ctx, tenantID, subjectID, p, at); err != nil {
		log.Warn("touch subject failed", logger.SubjectID(subjectID), logger.Err(err))
	}
}

func (l *Linker) dropOrphan(ctx context.Context, log *zap.Logger, tenantID, subjectID string) {
	if err := l.subjects.DeleteSubject(ctx, tenantID, subjectID); err != nil {
		log.Warn("orphan subject cleanup failed", logger.SubjectID(subjectID), logger.Err(err))
	}
}
