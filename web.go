// Package workbench embeds the dashboard front end.
package workbench

import "embed"

// WebFS holds the static dashboard served at /.
//
//go:embed web
var WebFS embed.FS
