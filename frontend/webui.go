// Package webui embeds the single-page verification form.
package webui

import (
	"embed"
	"io/fs"
)

//go:embed dist
var content embed.FS

func FS() fs.FS {
	return content
}
