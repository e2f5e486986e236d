// Package web embeds the HTML templates used to render documents.
package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates
var Templates embed.FS
