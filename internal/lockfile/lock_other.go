//go:build !unix && !windows

package lockfile

import "os"

// No file locking here; wasm builds are single-process.
func lockExclusive(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
