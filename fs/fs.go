// Package appfs embeds the files the binaries need at runtime: database migrations,
// email templates and static assets.
package appfs

import "embed"

//go:embed migrations/*.sql templates templates/email/_base.* assets
var FS embed.FS
