package migrations

import "embed"

// Files holds the session store schema applied by platform/migrate.
//
//go:embed *.sql
var Files embed.FS
