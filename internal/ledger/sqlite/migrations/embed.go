package migrations

import "embed"

// FS contains the embedded SQLite schema for the vote ledger.
//
//go:embed *.sql
var FS embed.FS
