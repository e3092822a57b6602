package util

import "github.com/shirou/gopsutil/v4/process"

// IsProcessAlive reports whether a process with the given pid exists.
// Zombies that have not been reaped yet count as alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}
