package web

import (
	"embed"
	"io/fs"
)

// staticFiles bundles the panel's single-page UI.
//
//go:embed static/*
var staticFiles embed.FS

// Static returns a filesystem rooted at the bundled UI assets.
func Static() (fs.FS, error) {
	return fs.Sub(staticFiles, "static")
}
