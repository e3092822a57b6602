package worker

import "os/exec"

// signal kills the process. Windows has no graceful
// termination signal for console-less children.
func (p *proc) signal(_ bool) error {
	return p.process.Kill()
}

func initCmd(cmd *exec.Cmd) {
	// No-op on Windows.
}
