//go:build !dev

package main

import (
	"embed"
	"io/fs"
)

// clientBundle is the Vite build output copied into frontend/dist before
// `go build`. It is served in production mode when --dist is not given.
//
//go:embed frontend/dist
var clientBundle embed.FS

func getFrontendFS() (fs.FS, error) {
	return fs.Sub(clientBundle, "frontend/dist")
}
