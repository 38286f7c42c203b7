//go:build linux

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var errInvalidCore = fmt.Errorf("affinity: invalid core id")

func pinCurrentThread(coreID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	if set.Count() == 0 {
		return fmt.Errorf("affinity: invalid core id %d", coreID)
	}
	// Pid 0 targets the calling thread, which the caller has already
	// locked to the current OS thread via runtime.LockOSThread.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity core=%d: %w", coreID, err)
	}
	return nil
}
