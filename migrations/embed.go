// Package migrations embeds the goose SQL migration files that define the
// event log and projection schema for a store instance.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
