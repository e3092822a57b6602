package worker

import (
	"errors"
	"io"
	"time"
)

var (
	ErrKillTimeout          = errors.New("kill timeout")
	ErrWorkerNotStarted     = errors.New("worker not started")
	ErrWorkerAlreadyStarted = errors.New("worker already started")
)

type StartConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string `conf:"cmd"`

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string `conf:"cwd"`

	// Args is the list of arguments to pass to the command
	Args []string `conf:"args"`

	// Env is the complete environment of the process. If nil,
	// the process inherits the environment of the caller.
	Env map[string]string `conf:"env"`

	// Stdout and Stderr receive the output of the process.
	// Nil writers discard the output.
	Stdout io.Writer `conf:"-"`
	Stderr io.Writer `conf:"-"`
}

type StopConfig struct {
	// GracePeriod is the duration to wait for the
	// worker to exit after requesting termination
	GracePeriod time.Duration `conf:"grace_period"`

	// KillTimeout is the duration to wait for the
	// OS to confirm a forced kill
	KillTimeout time.Duration `conf:"kill_timeout"`
}

type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int
}

// ExitCode flattens the event into a single status code. A process
// killed by a signal reports the negated signal number.
func (e ExitEvent) ExitCode() int {
	if e.Code != nil {
		return *e.Code
	}

	if e.Signal != nil {
		return -*e.Signal
	}

	return 1
}
