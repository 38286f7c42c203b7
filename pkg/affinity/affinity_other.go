//go:build !linux

package affinity

import "fmt"

var errInvalidCore = fmt.Errorf("affinity: invalid core id")

// pinCurrentThread has no supported implementation outside Linux; it
// always fails so callers fall back to running on any core.
func pinCurrentThread(coreID int) error {
	return fmt.Errorf("affinity: core pinning is not supported on this platform")
}
