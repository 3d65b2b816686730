// Package migrations holds the Postgres schema for the booking service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
