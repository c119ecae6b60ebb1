//go:build dev

package main

import "io/fs"

// getFrontendFS returns nil in dev builds; production mode then needs --dist.
func getFrontendFS() (fs.FS, error) {
	return nil, nil
}
