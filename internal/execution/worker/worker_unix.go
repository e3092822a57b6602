//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package worker

import (
	"os/exec"
	"syscall"
)

// signal delivers SIGTERM, or SIGKILL if force is set, to the
// process group of the worker. A forced kill also reaches
// descendants that moved to a process group of their own.
func (p *proc) signal(force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
		for _, pid := range descendants(p.pid) {
			_ = syscall.Kill(pid, sig)
		}
	}

	if pgid, err := syscall.Getpgid(p.pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, sig)
	}

	return syscall.Kill(p.pid, sig)
}

func initCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
