// Package migrations embeds the SQLite schema of the training history.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
