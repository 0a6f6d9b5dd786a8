// Package pg implementa repository.Store sobre PostgreSQL con pgxpool.
//
// Todo el SQL es explícito; la unicidad y el last-write-wins del ledger se
// resuelven con INSERT ... ON CONFLICT, nunca con read-then-write.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// Open crea el pool y verifica la conexión.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool envuelve un pool existente (tests de integración, CLI).
func NewFromPool(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Name() string { return "postgres" }

func (s *Store) Apps() repository.AppRepository                 { return &appRepo{pool: s.pool} }
func (s *Store) Subjects() repository.SubjectRepository         { return &subjectRepo{pool: s.pool} }
func (s *Store) Identities() repository.IdentityRepository      { return &identityRepo{pool: s.pool} }
func (s *Store) Sessions() repository.SessionRepository         { return &sessionRepo{pool: s.pool} }
func (s *Store) Ledger() repository.LedgerRepository            { return &ledgerRepo{pool: s.pool} }
func (s *Store) Entitlements() repository.EntitlementRepository { return &entitlementRepo{pool: s.pool} }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// mapErr traduce errores de pgx a errores de dominio.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		case "22P02", "23503": // invalid_text_representation (uuid), foreign_key_violation
			return fmt.Errorf("%s: %w", op, repository.ErrInvalidInput)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
