// Package migrations embeds the workflow store schema.
package migrations

import "embed"

// FS holds the numbered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
