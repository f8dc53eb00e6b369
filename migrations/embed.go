// Package migrations embeds the goose SQL migrations so the server
// binary can apply them on startup without an on-disk migrations
// directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
