package repository

import "context"

// Store es una conexión abierta a un backend y expone sus repositorios.
type Store interface {
	Name() string

	Apps() AppRepository
	Subjects() SubjectRepository
	Identities() IdentityRepository
	Sessions() SessionRepository
	Ledger() LedgerRepository
	Entitlements() EntitlementRepository

	Ping(ctx context.Context) error
	Close() error
}
