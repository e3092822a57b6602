package worker

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"go.uber.org/zap"
)

type proc struct {
	pid     int
	process *os.Process

	// done is closed once the process has been reaped,
	// err holds the result of the wait afterwards.
	done chan struct{}
	err  error

	log *zap.Logger
}

func startProc(config StartConfig, log *zap.Logger) (*proc, error) {
	cmd := exec.Command(config.Cmd, config.Args...)

	if config.Env != nil {
		cmd.Env = envList(config.Env)
	}

	if config.Cwd != "" {
		cmd.Dir = config.Cwd
	}

	// output is never captured, the child writes its
	// log lines to a file instead
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr

	initCmd(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	process := &proc{
		pid:     cmd.Process.Pid,
		process: cmd.Process,
		done:    make(chan struct{}),
		log:     log.Named("proc").With(zap.Int("pid", cmd.Process.Pid)),
	}

	go func() {
		// block until the process exits
		process.err = cmd.Wait()

		close(process.done)
	}()

	return process, nil
}

func (p *proc) Terminate(timeout time.Duration) error {
	// terminate should report success if the process terminated
	// by the time the caller issues the request.
	if p.exited() {
		p.log.Debug("process already terminated")
		return nil
	}

	p.log.Debug("requesting termination")

	if err := p.signal(false); err != nil {
		p.log.Warn("terminate failed", zap.Error(err))
	}

	return p.waitForTermination(timeout)
}

func (p *proc) Kill(timeout time.Duration) error {
	if p.exited() {
		p.log.Debug("process already terminated")
		return nil
	}

	p.log.Info("killing process")

	if err := p.signal(true); err != nil {
		p.log.Warn("kill failed", zap.Error(err))
	}

	return p.waitForTermination(timeout)
}

func (p *proc) Done() <-chan struct{} {
	return p.done
}

func (p *proc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *proc) waitForTermination(timeout time.Duration) error {
	// if timeout is < 0, don't wait for the process to exit
	if timeout < 0 {
		return nil
	}

	// if timeout is 0, wait indefinitely
	if timeout == 0 {
		<-p.done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return ErrKillTimeout
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, fmt.Sprintf("%s=%s", k, env[k]))
	}

	return list
}
