// Package migrations contains embedded SQL migrations for the index store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
