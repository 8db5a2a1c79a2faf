// Package migrations holds the goose SQL migrations, embedded for the migrate command and DB tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
