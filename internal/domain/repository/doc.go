// Package repository define los contratos de persistencia del dominio.
//
// Las implementaciones viven en internal/store/pg (PostgreSQL) e
// internal/store/memory (tests y modo dev).
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - tenantID (app_id) se pasa explícito en todo método que lee o escribe
//     sesiones, identidades o hechos de billing; vacío => ErrInvalidInput.
//   - Los hechos de billing se escriben con upsert por id del proveedor,
//     nunca con read-then-write.
//   - Errores de dominio en errors.go.
package repository
