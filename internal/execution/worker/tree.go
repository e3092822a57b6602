package worker

import "github.com/shirou/gopsutil/v4/process"

// descendants returns the pids of all children of pid, recursively.
// Returns an empty slice if the process is gone.
func descendants(pid int) []int {
	var pids []int

	var walk func(pid int32)
	walk = func(pid int32) {
		proc, err := process.NewProcess(pid)
		if err != nil {
			return
		}

		children, _ := proc.Children()
		for _, child := range children {
			pids = append(pids, int(child.Pid))
			walk(child.Pid)
		}
	}

	walk(int32(pid))
	return pids
}
