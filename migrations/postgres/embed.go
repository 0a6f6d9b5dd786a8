// Package migrations embebe los scripts SQL del esquema.
package migrations

import "embed"

// FS contiene los *_up.sql que se aplican en orden lexicográfico.
//
//go:embed *_up.sql
var FS embed.FS
