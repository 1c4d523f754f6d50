//go:build !unix && !windows

package security

import "os"

// No advisory locking on this platform; O_EXCL creation still applies.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
