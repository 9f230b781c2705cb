// Package migrations embeds the SQL schema so binaries and tests can migrate
// without a checkout on disk.
package migrations

import "embed"

//go:embed postgres/*.sql
var Postgres embed.FS

const PostgresDir = "postgres"
