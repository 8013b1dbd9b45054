// Package migrations embeds the SQL schema of the local vault database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
