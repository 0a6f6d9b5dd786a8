package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

// migrationLockID es la clave de pg_advisory_lock para migraciones.
const migrationLockID int64 = 0x61707062617365 // "appbase"

// RunMigrations aplica los *_up.sql de fsys en orden bajo advisory lock, para
// que varias réplicas arrancando a la vez no corran DDL en paralelo. Los
// scripts son idempotentes (IF NOT EXISTS). Devuelve cuántos se ejecutaron.
func (s *Store) RunMigrations(ctx context.Context, fsys fs.FS) (int, error) {
	log := logger.From(ctx).With(logger.Layer("store"), logger.Component("pg"), logger.Op("RunMigrations"))

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := s.pool.Acquire(lockCtx)
	if err != nil {
		return 0, fmt.Errorf("pg: acquire conn for migrations: %w", err)
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(lockCtx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&acquired); err != nil {
		return 0, fmt.Errorf("pg: migration lock: %w", err)
	}
	if !acquired {
		log.Info("migration lock held by another process, waiting")
		if _, err := conn.Exec(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
			return 0, fmt.Errorf("pg: wait migration lock: %w", err)
		}
	}
	defer func() {
		// el lock es de sesión: liberarlo en la misma conexión
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("failed to release migration lock", logger.Err(err))
		}
	}()

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return 0, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), "_up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, err
		}
		if _, err := conn.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("pg: exec %s: %w", f, err)
		}
		applied++
		log.Debug("migration applied", logger.String("file", f))
	}
	log.Info("migrations done", logger.Count(applied))
	return applied, nil
}
